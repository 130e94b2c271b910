// vm/types.go
package vm

import (
	"errors"

	"securevault/db"
)

// ========== 错误定义 ==========

var (
	ErrNilTx            = errors.New("nil transaction")
	ErrNilPayload       = errors.New("nil transaction payload")
	ErrInvalidSnapshot  = errors.New("invalid snapshot index")
	ErrUnknownKind      = errors.New("no handler for tx kind")
	ErrTxAlreadyApplied = errors.New("transaction already applied")
	ErrTxIDMismatch     = errors.New("transaction id does not match contents")
)

const (
	StatusSucceed = "SUCCEED"
	StatusFailed  = "FAILED"
)

// ========== 基础类型定义 ==========

// WriteOp “要怎么改状态”的清单
type WriteOp struct {
	Key      string // 完整的 key（包括命名空间前缀）
	Value    []byte // 序列化后的值
	Del      bool   // true表示删除操作
	Category string // 数据分类：account, index, receipt 等，便于追踪和调试
}

// toKV 转换为 db 层的写操作
func toKV(ops []WriteOp) []db.KV {
	out := make([]db.KV, 0, len(ops))
	for _, w := range ops {
		out = append(out, db.KV{Key: w.Key, Value: w.Value, Delete: w.Del})
	}
	return out
}

// Receipt 记录执行结果
type Receipt struct {
	TxID       string   `json:"tx_id"`
	Kind       string   `json:"kind"`
	Status     string   `json:"status"` // "SUCCEED" or "FAILED"
	Error      string   `json:"error,omitempty"`
	Code       uint32   `json:"code,omitempty"` // 程序自定义错误码（如 6000）
	Timestamp  int64    `json:"timestamp"`
	Logs       []string `json:"logs,omitempty"`
	WriteCount int      `json:"write_count"`
}

// Succeeded 是否成功
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == StatusSucceed
}

// NewReceipt 为 tx 创建一个成功态回执，handler 失败时改写状态
func NewReceipt(tx *Tx) *Receipt {
	rc := &Receipt{Status: StatusSucceed}
	if tx != nil {
		rc.TxID = tx.TxID
		rc.Kind = tx.Kind
	}
	return rc
}

// Fail 把回执标记为失败
func (r *Receipt) Fail(err error) *Receipt {
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
		if code, ok := ErrorCode(err); ok {
			r.Code = code
		}
	}
	return r
}

// Log 追加一条程序日志（对应链上交易日志）
func (r *Receipt) Log(line string) {
	r.Logs = append(r.Logs, line)
}

// CodedError 带数值错误码的业务错误
type CodedError interface {
	error
	ErrorCode() uint32
}

// ErrorCode 从错误链里取出第一个错误码
func ErrorCode(err error) (uint32, bool) {
	var ce CodedError
	if errors.As(err, &ce) {
		return ce.ErrorCode(), true
	}
	return 0, false
}
