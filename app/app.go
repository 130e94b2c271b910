// app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"securevault/config"
	"securevault/db"
	"securevault/identity"
	"securevault/ledger"
	"securevault/logs"
	"securevault/stats"
	"securevault/token"
	"securevault/txpool"
	"securevault/vault"
	"securevault/vm"
)

var ErrStopped = errors.New("app is stopped")

// Container 依赖注入容器
type Container struct {
	Config   *config.Config
	DB       *db.Manager
	Registry *vm.HandlerRegistry
	Executor *vm.Executor
	Vault    *vault.Program
	Stats    *stats.Stats
	TxPool   *txpool.TxPool
}

// NewContainer 按依赖顺序构建：日志级别 -> 数据库 -> 程序 -> 执行器
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	level, err := logs.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logs.SetLevel(level)

	prog, err := vault.New(cfg)
	if err != nil {
		return nil, err
	}

	reg := vm.NewHandlerRegistry()
	if err := reg.RegisterAll(token.Handlers()...); err != nil {
		return nil, err
	}
	if err := reg.RegisterAll(prog.Handlers()...); err != nil {
		return nil, err
	}

	mgr, err := db.NewManagerWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	x, err := vm.NewExecutor(mgr, reg, cfg.Cache.ReceiptCacheSize)
	if err != nil {
		mgr.Close()
		return nil, err
	}

	pool, err := txpool.NewTxPool(cfg.TxPool.Capacity, x.IsTxApplied)
	if err != nil {
		mgr.Close()
		return nil, err
	}

	return &Container{
		Config:   cfg,
		DB:       mgr,
		Registry: reg,
		Executor: x,
		Vault:    prog,
		Stats:    stats.NewStats(cfg.Stats.LatencyWindow),
		TxPool:   pool,
	}, nil
}

// App 主应用结构
type App struct {
	container *Container
	mu        sync.RWMutex
	stopped   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewApp 创建应用实例
func NewApp(container *Container) *App {
	logs.Info("Service started, vault program %s, handlers %v",
		container.Vault.ID, container.Registry.List())
	return &App{container: container}
}

// Submit 执行一笔交易；ctx 在执行前已取消时直接返回，执行开始后不可中断
func (a *App) Submit(ctx context.Context, tx *vm.Tx) (*vm.Receipt, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		return nil, ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	rc, err := a.container.Executor.Execute(tx)
	a.container.Stats.Record(rc, time.Since(start))
	return rc, err
}

// SubmitBatch 按顺序执行一批交易并一次提交
func (a *App) SubmitBatch(ctx context.Context, txs []*vm.Tx) ([]*vm.Receipt, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		return nil, ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	receipts, err := a.container.Executor.ExecuteBatch(txs)
	if err != nil {
		return nil, err
	}
	// 批内无法逐笔计时，按平均耗时记
	per := time.Since(start)
	if len(receipts) > 0 {
		per /= time.Duration(len(receipts))
	}
	for _, rc := range receipts {
		a.container.Stats.Record(rc, per)
	}
	return receipts, nil
}

// Stats 按交易种类的执行统计
func (a *App) Stats() map[string]stats.Summary {
	return a.container.Stats.Snapshot()
}

// Enqueue 交易入池，等待下一次 Flush
func (a *App) Enqueue(tx *vm.Tx) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		return ErrStopped
	}
	if tx != nil {
		if _, ok := a.container.Registry.Get(tx.Kind); !ok {
			return fmt.Errorf("%w: %s", vm.ErrUnknownKind, tx.Kind)
		}
	}
	return a.container.TxPool.AddTx(tx)
}

// Flush 按到达顺序取出最多 BatchSize 笔，作为一批执行。
// 批内有结构错误的交易时整批作废，退回逐笔执行；结构错误的那笔回执为 nil 并被丢弃。
func (a *App) Flush(ctx context.Context) ([]*vm.Receipt, error) {
	pool := a.container.TxPool
	txs := pool.GetPendingTxs(a.container.Config.TxPool.BatchSize)
	if len(txs) == 0 {
		return nil, nil
	}
	receipts, err := a.SubmitBatch(ctx, txs)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrStopped) {
			return nil, err
		}
		logs.Warn("[App] batch of %d rejected (%v), executing one by one", len(txs), err)
		receipts = make([]*vm.Receipt, 0, len(txs))
		for _, tx := range txs {
			rc, err := a.Submit(ctx, tx)
			if rc == nil && err != nil {
				if ctx.Err() != nil || errors.Is(err, ErrStopped) {
					return nil, err
				}
				logs.Warn("[App] dropping invalid tx %s: %v", tx.TxID, err)
			}
			receipts = append(receipts, rc)
		}
	}
	for _, tx := range txs {
		pool.RemoveTx(tx.TxID)
	}
	logs.Debug("[App] flushed %d txs, %d pending", len(txs), pool.GetPendingCount())
	return receipts, nil
}

// Start 后台按 interval 周期性 Flush，直到 Stop
func (a *App) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrStopped) {
					logs.Error("[App] flush failed: %v", err)
				}
			}
		}
	}()
}

// query 在已提交状态上构造只读上下文
func (a *App) query(programID identity.Identity) *ledger.Context {
	mgr := a.container.DB
	return ledger.NewContext(vm.NewStateView(mgr.Get, mgr.Scan), programID)
}

// VaultState 查询金库状态
func (a *App) VaultState(addr identity.Identity) (*vault.VaultState, error) {
	return a.container.Vault.Load(a.query(a.container.Vault.ID), addr)
}

// Vaults 列出全部金库
func (a *App) Vaults() ([]vault.Entry, error) {
	return a.container.Vault.ListVaults(a.query(a.container.Vault.ID).View())
}

// Balance 查询持有账户余额
func (a *App) Balance(holding identity.Identity) (uint64, error) {
	return token.Balance(a.query(token.ProgramID), holding)
}

// Stop 停止应用并关闭数据库，可重复调用
func (a *App) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true
	a.container.DB.Close()
	logs.Info("Service stopped")
}

// GetContainer 获取容器（用于测试或特殊场景）
func (a *App) GetContainer() *Container {
	return a.container
}
