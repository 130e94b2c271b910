// vm/interfaces.go
package vm

import "securevault/db"

// ========== 核心接口定义 ==========

// StateView 状态视图接口
type StateView interface {
	// 读/写/删某个 key 的状态；写入只写进这个视图，不直接落到底层 DB。
	Get(key string) ([]byte, bool, error)
	Set(key string, val []byte)
	Del(key string)
	// 做一个快照点、必要时回滚到该点，实现失败回滚。
	Snapshot() int
	Revert(snap int) error
	// 把这段执行期间累积的写集导出来，给后续“真正落库”用。
	Diff() []WriteOp
	// 扫描指定前缀下的所有键值对（合并 overlay 与底层存储）
	Scan(prefix string) (map[string][]byte, error)
}

// TxHandler 交易处理器接口
type TxHandler interface {
	// 标识这个 Handler 处理哪种交易类型（比如 "vault.deposit"）。
	Kind() string
	// 在给定 StateView 上预执行，返回写集与回执。
	// 返回 (nil, rc, err) 且 rc != nil 表示业务失败：该交易回滚，批次继续；
	// rc == nil 的 err 表示交易结构错误，整个批次作废。
	DryRun(tx *Tx, sv StateView) ([]WriteOp, *Receipt, error)
}

// DBManager 数据库管理器接口
type DBManager interface {
	Get(key string) ([]byte, error)
	Scan(prefix string) (map[string][]byte, error)
	// Commit 原子落库
	Commit(ops []db.KV) error
}

// ReadThroughFn 当 overlay 没命中时，如何从底层读真实值；不存在返回 (nil, nil)
type ReadThroughFn func(key string) ([]byte, error)

// ScanFn 用于 StateView 从底层存储做前缀扫描
type ScanFn func(prefix string) (map[string][]byte, error)

// KindFn 给交易提取“交易种类”，让 VM 能用 Kind() 路由到正确的 TxHandler
type KindFn func(tx *Tx) (string, error)
