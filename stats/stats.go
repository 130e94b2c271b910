// stats/stats.go
// 按交易种类统计执行结果：成功/失败次数、程序错误码分布、执行耗时分位。
package stats

import (
	"sort"
	"sync"
	"time"

	"securevault/vm"
)

// Summary 单个交易种类的统计
type Summary struct {
	Succeeded uint64            `json:"succeeded"`
	Failed    uint64            `json:"failed"`
	Codes     map[uint32]uint64 `json:"codes,omitempty"`
	P50       time.Duration     `json:"p50"`
	P99       time.Duration     `json:"p99"`
	Max       time.Duration     `json:"max"`
}

type kindStats struct {
	succeeded uint64
	failed    uint64
	codes     map[uint32]uint64

	samples []int64 // 纳秒，环形缓冲区
	nextIdx int
	filled  bool
	maxNs   int64
}

// Stats 执行统计，并发安全
type Stats struct {
	mu     sync.RWMutex
	window int
	kinds  map[string]*kindStats
}

// NewStats window 为每个种类保留的耗时样本数，<=0 时取 1024
func NewStats(window int) *Stats {
	if window <= 0 {
		window = 1024
	}
	return &Stats{window: window, kinds: make(map[string]*kindStats)}
}

// Window 每个种类保留的耗时样本数
func (s *Stats) Window() int { return s.window }

// Record 记录一笔交易的回执与耗时；rc 为 nil（结构错误）时只计耗时到 "invalid"
func (s *Stats) Record(rc *vm.Receipt, d time.Duration) {
	if s == nil {
		return
	}
	kind := "invalid"
	if rc != nil && rc.Kind != "" {
		kind = rc.Kind
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.kinds[kind]
	if !ok {
		k = &kindStats{samples: make([]int64, s.window), codes: make(map[uint32]uint64)}
		s.kinds[kind] = k
	}
	switch {
	case rc.Succeeded():
		k.succeeded++
	default:
		k.failed++
		if rc != nil && rc.Code != 0 {
			k.codes[rc.Code]++
		}
	}

	ns := d.Nanoseconds()
	if ns < 0 {
		ns = 0
	}
	k.samples[k.nextIdx] = ns
	k.nextIdx = (k.nextIdx + 1) % len(k.samples)
	if k.nextIdx == 0 {
		k.filled = true
	}
	if ns > k.maxNs {
		k.maxNs = ns
	}
}

// Snapshot 当前统计的副本
func (s *Stats) Snapshot() map[string]Summary {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Summary, len(s.kinds))
	for kind, k := range s.kinds {
		n := k.nextIdx
		if k.filled {
			n = len(k.samples)
		}
		values := append([]int64(nil), k.samples[:n]...)
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

		var codes map[uint32]uint64
		if len(k.codes) > 0 {
			codes = make(map[uint32]uint64, len(k.codes))
			for c, v := range k.codes {
				codes[c] = v
			}
		}
		out[kind] = Summary{
			Succeeded: k.succeeded,
			Failed:    k.failed,
			Codes:     codes,
			P50:       time.Duration(percentile(values, 0.50)),
			P99:       time.Duration(percentile(values, 0.99)),
			Max:       time.Duration(k.maxNs),
		}
	}
	return out
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
