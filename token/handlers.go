// token/handlers.go
// 代币程序的交易种类、交易内容编码与处理器注册
package token

import (
	"securevault/identity"
	"securevault/ledger"
	"securevault/vm"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	KindCreateMint    = "token.create_mint"
	KindCreateAccount = "token.create_account"
	KindMintTo        = "token.mint_to"
	KindTransfer      = "token.transfer"
)

// ========== 交易内容 ==========

type CreateMintPayload struct {
	Mint      identity.Identity
	Authority identity.Identity
	Decimals  uint8
}

func (p *CreateMintPayload) Kind() string { return KindCreateMint }
func (p *CreateMintPayload) Encode() []byte {
	b := appendIdentity(nil, 1, p.Mint)
	b = appendIdentity(b, 2, p.Authority)
	return protowire.AppendVarint(protowire.AppendTag(b, 3, protowire.VarintType), uint64(p.Decimals))
}

type CreateAccountPayload struct {
	Holding identity.Identity
	Mint    identity.Identity
	Owner   identity.Identity
}

func (p *CreateAccountPayload) Kind() string { return KindCreateAccount }
func (p *CreateAccountPayload) Encode() []byte {
	b := appendIdentity(nil, 1, p.Holding)
	b = appendIdentity(b, 2, p.Mint)
	return appendIdentity(b, 3, p.Owner)
}

type MintToPayload struct {
	Mint   identity.Identity
	To     identity.Identity
	Amount uint64
}

func (p *MintToPayload) Kind() string { return KindMintTo }
func (p *MintToPayload) Encode() []byte {
	b := appendIdentity(nil, 1, p.Mint)
	b = appendIdentity(b, 2, p.To)
	return appendFixed64(b, 3, p.Amount)
}

// TransferPayload 普通转账，Authority 必须签名
type TransferPayload struct {
	From      identity.Identity
	To        identity.Identity
	Authority identity.Identity
	Mint      identity.Identity
	Amount    uint64
}

func (p *TransferPayload) Kind() string { return KindTransfer }
func (p *TransferPayload) Encode() []byte {
	b := appendIdentity(nil, 1, p.From)
	b = appendIdentity(b, 2, p.To)
	b = appendIdentity(b, 3, p.Authority)
	b = appendIdentity(b, 4, p.Mint)
	return appendFixed64(b, 5, p.Amount)
}

// Handlers 代币程序的全部交易处理器
func Handlers() []vm.TxHandler {
	return []vm.TxHandler{
		ledger.NewHandler(KindCreateMint, ProgramID, func(ctx *ledger.Context, p *CreateMintPayload) error {
			return CreateMint(ctx, p.Mint, p.Authority, p.Decimals)
		}),
		ledger.NewHandler(KindCreateAccount, ProgramID, func(ctx *ledger.Context, p *CreateAccountPayload) error {
			return CreateHolding(ctx, p.Holding, p.Mint, p.Owner)
		}),
		ledger.NewHandler(KindMintTo, ProgramID, func(ctx *ledger.Context, p *MintToPayload) error {
			return MintTo(ctx, p.Mint, p.To, p.Amount)
		}),
		ledger.NewHandler(KindTransfer, ProgramID, func(ctx *ledger.Context, p *TransferPayload) error {
			return Transfer(ctx, p.From, p.To, Signer(p.Authority), p.Mint, p.Amount)
		}),
	}
}
