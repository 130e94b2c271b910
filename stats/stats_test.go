package stats

import (
	"testing"
	"time"

	"securevault/vm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCountsAndCodes(t *testing.T) {
	s := NewStats(4)
	s.Record(&vm.Receipt{Kind: "vault.deposit", Status: vm.StatusSucceed}, time.Millisecond)
	s.Record(&vm.Receipt{Kind: "vault.withdraw", Status: vm.StatusFailed, Code: 6000}, 2*time.Millisecond)
	s.Record(&vm.Receipt{Kind: "vault.withdraw", Status: vm.StatusFailed, Code: 6000}, 3*time.Millisecond)
	s.Record(&vm.Receipt{Kind: "vault.withdraw", Status: vm.StatusSucceed}, time.Millisecond)
	s.Record(nil, time.Microsecond)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, uint64(1), snap["vault.deposit"].Succeeded)
	assert.Nil(t, snap["vault.deposit"].Codes)

	w := snap["vault.withdraw"]
	assert.Equal(t, uint64(1), w.Succeeded)
	assert.Equal(t, uint64(2), w.Failed)
	assert.Equal(t, map[uint32]uint64{6000: 2}, w.Codes)
	assert.Equal(t, 3*time.Millisecond, w.Max)
	assert.Equal(t, 2*time.Millisecond, w.P50)

	assert.Equal(t, uint64(1), snap["invalid"].Failed)
}

func TestWindowWraps(t *testing.T) {
	s := NewStats(2)
	for i := 1; i <= 5; i++ {
		s.Record(&vm.Receipt{Kind: "k", Status: vm.StatusSucceed}, time.Duration(i))
	}
	k := s.Snapshot()["k"]
	assert.Equal(t, uint64(5), k.Succeeded)
	assert.Equal(t, time.Duration(5), k.Max)
	// 只保留最近两个样本 {4, 5}
	assert.Equal(t, time.Duration(4), k.P50)
	assert.Equal(t, time.Duration(4), k.P99)
}

func TestNilStats(t *testing.T) {
	var s *Stats
	s.Record(&vm.Receipt{Kind: "k"}, time.Second)
	assert.Nil(t, s.Snapshot())
}
