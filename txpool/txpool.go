// txpool/txpool.go
// 待执行交易池：去重、按到达顺序出池，交给执行器按批执行。
package txpool

import (
	"errors"
	"fmt"
	"sync"

	"securevault/logs"
	"securevault/vm"

	lru "github.com/hashicorp/golang-lru"
)

var (
	ErrDuplicate      = errors.New("transaction already pending")
	ErrAlreadyApplied = errors.New("transaction already applied")
	ErrPoolFull       = errors.New("transaction pool is full")
)

// AppliedFn 判断交易是否已经提交过
type AppliedFn func(txID string) bool

// TxPool 交易池
type TxPool struct {
	mu       sync.Mutex
	pending  *lru.Cache // txID -> *vm.Tx，Keys() 按加入顺序返回
	capacity int
	applied  AppliedFn
	logger   *logs.Logger
}

// NewTxPool 创建交易池；applied 为 nil 时不检查已提交
func NewTxPool(capacity int, applied AppliedFn) (*TxPool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid pool capacity %d", capacity)
	}
	// 容量由 Add 自己控制，lru 不会发生淘汰
	cache, err := lru.New(capacity + 1)
	if err != nil {
		return nil, err
	}
	return &TxPool{
		pending:  cache,
		capacity: capacity,
		applied:  applied,
		logger:   logs.WithComponent("TxPool"),
	}, nil
}

// AddTx 校验 TxID 后入池
func (p *TxPool) AddTx(tx *vm.Tx) error {
	if tx == nil {
		return vm.ErrNilTx
	}
	if tx.Payload == nil {
		return vm.ErrNilPayload
	}
	if tx.TxID == "" || tx.TxID != vm.ComputeTxID(tx) {
		return fmt.Errorf("%w: %s", vm.ErrTxIDMismatch, tx.TxID)
	}
	if p.applied != nil && p.applied(tx.TxID) {
		return fmt.Errorf("%w: %s", ErrAlreadyApplied, tx.TxID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending.Contains(tx.TxID) {
		return fmt.Errorf("%w: %s", ErrDuplicate, tx.TxID)
	}
	if p.pending.Len() >= p.capacity {
		return ErrPoolFull
	}
	p.pending.Add(tx.TxID, tx)
	p.logger.Trace("added tx=%s kind=%s", tx.TxID, tx.Kind)
	return nil
}

// HasTx 是否在池中
func (p *TxPool) HasTx(txID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Contains(txID)
}

// RemoveTx 移出交易池
func (p *TxPool) RemoveTx(txID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Remove(txID)
}

// GetPendingTxs 按加入顺序返回最多 limit 笔（limit<=0 表示全部），不移出
func (p *TxPool) GetPendingTxs(limit int) []*vm.Tx {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := p.pending.Keys()
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]*vm.Tx, 0, len(keys))
	for _, k := range keys {
		// Peek 不改变顺序
		if v, ok := p.pending.Peek(k); ok {
			out = append(out, v.(*vm.Tx))
		}
	}
	return out
}

// GetPendingCount 池中交易数
func (p *TxPool) GetPendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Len()
}

// Clear 清空
func (p *TxPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Purge()
}
