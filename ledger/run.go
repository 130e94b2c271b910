// ledger/run.go
package ledger

import (
	"fmt"

	"securevault/identity"
	"securevault/vm"
)

// Run 在子视图上以 programID 身份执行 fn，程序日志进回执。
// fn 出错时丢弃子视图，返回业务失败（rc != nil）；成功时返回子视图的写集。
func Run(tx *vm.Tx, sv vm.StateView, programID identity.Identity, fn func(ctx *Context) error) ([]vm.WriteOp, *vm.Receipt, error) {
	rc := vm.NewReceipt(tx)
	child := vm.NewChildView(sv)
	ctx := FromTx(tx, child, programID)

	err := fn(ctx)
	for _, line := range ctx.Messages() {
		rc.Log(line)
	}
	if err != nil {
		return nil, rc, err
	}
	return child.Diff(), rc, nil
}

// Handler 把一个程序指令包装成 vm.TxHandler，交易内容必须是 T
type Handler[T vm.Payload] struct {
	kind      string
	programID identity.Identity
	run       func(ctx *Context, p T) error
}

// NewHandler 创建指令处理器
func NewHandler[T vm.Payload](kind string, programID identity.Identity, run func(ctx *Context, p T) error) *Handler[T] {
	return &Handler[T]{kind: kind, programID: programID, run: run}
}

func (h *Handler[T]) Kind() string { return h.kind }

// DryRun 内容类型不对属于结构错误，不产生回执
func (h *Handler[T]) DryRun(tx *vm.Tx, sv vm.StateView) ([]vm.WriteOp, *vm.Receipt, error) {
	p, ok := tx.Payload.(T)
	if !ok {
		return nil, nil, fmt.Errorf("%s: unexpected payload %T", h.kind, tx.Payload)
	}
	return Run(tx, sv, h.programID, func(ctx *Context) error {
		return h.run(ctx, p)
	})
}
