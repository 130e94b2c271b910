// vault/handlers.go
package vault

import (
	"securevault/identity"
	"securevault/ledger"
	"securevault/vm"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	KindInitialize = "vault.initialize"
	KindDeposit    = "vault.deposit"
	KindWithdraw   = "vault.withdraw"
)

type payloadWriter []byte

func (w payloadWriter) id(num protowire.Number, id identity.Identity) payloadWriter {
	w = protowire.AppendTag(w, num, protowire.BytesType)
	return protowire.AppendBytes(w, id[:])
}

func (w payloadWriter) u64(num protowire.Number, v uint64) payloadWriter {
	w = protowire.AppendTag(w, num, protowire.VarintType)
	return protowire.AppendVarint(w, v)
}

// InitializePayload 创建金库
type InitializePayload struct {
	Initializer identity.Identity
	Mint        identity.Identity
	Vault       identity.Identity
}

func (p *InitializePayload) Kind() string { return KindInitialize }
func (p *InitializePayload) Encode() []byte {
	return payloadWriter(nil).id(1, p.Initializer).id(2, p.Mint).id(3, p.Vault)
}

// DepositPayload 存款
type DepositPayload struct {
	Accounts DepositAccounts
	Amount   uint64
}

func (p *DepositPayload) Kind() string { return KindDeposit }
func (p *DepositPayload) Encode() []byte {
	a := p.Accounts
	return payloadWriter(nil).
		id(1, a.Depositor).id(2, a.DepositorHolding).id(3, a.VaultHolding).
		id(4, a.Mint).id(5, a.Vault).u64(6, p.Amount)
}

// WithdrawPayload 取款
type WithdrawPayload struct {
	Accounts WithdrawAccounts
	Amount   uint64
}

func (p *WithdrawPayload) Kind() string { return KindWithdraw }
func (p *WithdrawPayload) Encode() []byte {
	a := p.Accounts
	return payloadWriter(nil).
		id(1, a.Withdrawer).id(2, a.Vault).id(3, a.VaultHolding).
		id(4, a.RecipientHolding).id(5, a.Mint).u64(6, p.Amount)
}

// Handlers 金库程序的全部交易处理器
func (p *Program) Handlers() []vm.TxHandler {
	return []vm.TxHandler{
		ledger.NewHandler(KindInitialize, p.ID, func(ctx *ledger.Context, pl *InitializePayload) error {
			return p.Initialize(ctx, pl.Initializer, pl.Mint, pl.Vault)
		}),
		ledger.NewHandler(KindDeposit, p.ID, func(ctx *ledger.Context, pl *DepositPayload) error {
			return p.Deposit(ctx, pl.Accounts, pl.Amount)
		}),
		ledger.NewHandler(KindWithdraw, p.ID, func(ctx *ledger.Context, pl *WithdrawPayload) error {
			return p.Withdraw(ctx, pl.Accounts, pl.Amount)
		}),
	}
}
