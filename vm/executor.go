// vm/executor.go
package vm

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"securevault/keys"
	"securevault/logs"

	lru "github.com/hashicorp/golang-lru"
)

// Executor VM执行器
// 每笔交易在独立的 StateView 上执行，成功后写集在一个 DB 事务里提交；
// 失败则整个视图丢弃，底层存储不受影响。
type Executor struct {
	mu     sync.Mutex // 串行化提交，等价于账户级排序
	DB     DBManager
	Reg    *HandlerRegistry
	KFn    KindFn
	ReadFn ReadThroughFn
	ScanFn ScanFn
	Now    func() time.Time

	receipts *lru.Cache // txID -> *Receipt
	logger   *logs.Logger
}

// NewExecutor 创建执行器；receiptCacheSize <= 0 时使用 1024
func NewExecutor(db DBManager, reg *HandlerRegistry, receiptCacheSize int) (*Executor, error) {
	if db == nil {
		return nil, errors.New("nil db manager")
	}
	if reg == nil {
		reg = NewHandlerRegistry()
	}
	if receiptCacheSize <= 0 {
		receiptCacheSize = 1024
	}
	cache, err := lru.New(receiptCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create receipt cache: %w", err)
	}

	return &Executor{
		DB:       db,
		Reg:      reg,
		KFn:      DefaultKindFn,
		ReadFn:   db.Get,
		ScanFn:   db.Scan,
		Now:      time.Now,
		receipts: cache,
		logger:   logs.WithComponent("Executor"),
	}, nil
}

// SetKindFn 设置Kind提取函数
func (x *Executor) SetKindFn(fn KindFn) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.KFn = fn
}

// Execute 执行单笔交易并原子提交。
// 业务失败时返回 FAILED 回执和错误，且不落库任何内容。
func (x *Executor) Execute(tx *Tx) (*Receipt, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	sv := NewStateView(x.ReadFn, x.ScanFn)
	rc, err := x.executeOn(tx, sv)
	if err != nil {
		return rc, err
	}
	if err := x.commit(sv, []*Receipt{rc}); err != nil {
		return rc.Fail(err), err
	}
	return rc, nil
}

// ExecuteBatch 在同一个视图上顺序执行多笔交易（类似一个区块）。
// 单笔业务失败只回滚该笔；结构错误（无回执）使整批作废，什么都不提交。
func (x *Executor) ExecuteBatch(txs []*Tx) ([]*Receipt, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	sv := NewStateView(x.ReadFn, x.ScanFn)
	receipts := make([]*Receipt, 0, len(txs))
	seen := make(map[string]struct{}, len(txs))
	succeeded := make([]*Receipt, 0, len(txs))

	for idx, tx := range txs {
		if tx != nil {
			if _, dup := seen[tx.TxID]; dup {
				rc := NewReceipt(tx).Fail(ErrTxAlreadyApplied)
				receipts = append(receipts, rc)
				continue
			}
			seen[tx.TxID] = struct{}{}
		}

		// 创建快照点，用于失败时回滚
		snapshot := sv.Snapshot()
		rc, err := x.executeOn(tx, sv)
		if err != nil {
			if rc == nil {
				return nil, fmt.Errorf("tx %d invalid: %w", idx, err)
			}
			if rerr := sv.Revert(snapshot); rerr != nil {
				return nil, rerr
			}
			receipts = append(receipts, rc)
			continue
		}
		receipts = append(receipts, rc)
		succeeded = append(succeeded, rc)
	}

	if err := x.commit(sv, succeeded); err != nil {
		return nil, err
	}
	return receipts, nil
}

// Simulate 预执行但不提交，返回回执与写集
func (x *Executor) Simulate(tx *Tx) (*Receipt, []WriteOp, error) {
	sv := NewStateView(x.ReadFn, x.ScanFn)
	rc, err := x.executeOn(tx, sv)
	if err != nil {
		return rc, nil, err
	}
	return rc, sv.Diff(), nil
}

// executeOn 在 sv 上执行一笔交易；失败时 sv 中可能残留写入，由调用方回滚或丢弃
func (x *Executor) executeOn(tx *Tx, sv StateView) (*Receipt, error) {
	// 提取交易类型
	kind, err := x.KFn(tx)
	if err != nil {
		return nil, err
	}
	if tx.TxID == "" || tx.TxID != ComputeTxID(tx) {
		return nil, fmt.Errorf("%w: %s", ErrTxIDMismatch, tx.TxID)
	}

	rc := NewReceipt(tx)
	rc.Timestamp = x.Now().Unix()

	if x.isTxApplied(tx.TxID, sv) {
		return rc.Fail(ErrTxAlreadyApplied), ErrTxAlreadyApplied
	}

	h, ok := x.Reg.Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	ws, hrc, err := h.DryRun(tx, sv)
	if hrc != nil {
		hrc.TxID, hrc.Kind, hrc.Timestamp = rc.TxID, rc.Kind, rc.Timestamp
		rc = hrc
	}
	if err != nil {
		if hrc == nil {
			return nil, err
		}
		rc.Fail(err)
		x.logger.Info("tx %s (%s) FAILED: %v", tx.TxID, kind, err)
		return rc, err
	}

	ApplyWrites(sv, ws)
	rc.Status = StatusSucceed
	rc.WriteCount = len(ws)

	data, err := json.Marshal(rc)
	if err != nil {
		return nil, fmt.Errorf("marshal receipt: %w", err)
	}
	sv.Set(keys.KeyReceipt(tx.TxID), data)
	x.logger.Debug("tx %s (%s) ok, writes=%d", tx.TxID, kind, len(ws))
	return rc, nil
}

func (x *Executor) commit(sv StateView, succeeded []*Receipt) error {
	diff := sv.Diff()
	if len(diff) == 0 {
		return nil
	}
	if err := x.DB.Commit(toKV(diff)); err != nil {
		return fmt.Errorf("commit write set: %w", err)
	}
	for _, rc := range succeeded {
		x.receipts.Add(rc.TxID, rc)
	}
	return nil
}

func (x *Executor) isTxApplied(txID string, sv StateView) bool {
	if x.receipts.Contains(txID) {
		return true
	}
	_, ok, err := sv.Get(keys.KeyReceipt(txID))
	return err == nil && ok
}

// IsTxApplied 交易是否已经成功提交过
func (x *Executor) IsTxApplied(txID string) bool {
	_, ok, err := x.GetReceipt(txID)
	return err == nil && ok
}

// GetReceipt 查询已提交交易的回执
func (x *Executor) GetReceipt(txID string) (*Receipt, bool, error) {
	if v, ok := x.receipts.Get(txID); ok {
		return v.(*Receipt), true, nil
	}
	data, err := x.DB.Get(keys.KeyReceipt(txID))
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}
	var rc Receipt
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, false, fmt.Errorf("parse receipt %s: %w", txID, err)
	}
	x.receipts.Add(txID, &rc)
	return &rc, true, nil
}
