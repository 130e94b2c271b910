// token/token.go
// 代币转账服务：创建 Mint / Holding、增发、转账。
// 转账授权可以是普通签名者，也可以是调用方程序的派生权限。
package token

import (
	"errors"
	"fmt"
	"math/bits"

	"securevault/identity"
	"securevault/ledger"
)

// MaxDecimals uint64 最多能表示 19 位十进制，留一位给整数部分
const MaxDecimals = 18

// ProgramID 代币程序
var ProgramID = identity.FromSeed("token-program")

var (
	ErrMintNotFound      = errors.New("mint account not found")
	ErrMintMismatch      = errors.New("account mint does not match")
	ErrOwnerMismatch     = errors.New("authority does not own the source account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOverflow          = errors.New("amount overflow")
	ErrInvalidDecimals   = errors.New("invalid decimals")
	ErrInvalidAuthority  = errors.New("invalid authority")
)

// Authority 转账授权：普通签名者或派生权限
type Authority struct {
	key     identity.Identity
	derived *identity.DerivedAuthority
}

// Signer 由签名者本人授权
func Signer(id identity.Identity) Authority {
	return Authority{key: id}
}

// Derived 由调用方程序以派生权限授权，每次调用都会重新校验
func Derived(auth identity.DerivedAuthority) Authority {
	return Authority{key: auth.Address, derived: &auth}
}

// Key 授权身份
func (a Authority) Key() identity.Identity { return a.key }

// IsDerived 是否为派生权限
func (a Authority) IsDerived() bool { return a.derived != nil }

// invoke 从调用方上下文进入代币程序
func invoke(ctx *ledger.Context, auth Authority) (*ledger.Context, error) {
	if auth.derived == nil {
		return ctx.Invoke(ProgramID), nil
	}
	return ctx.InvokeSigned(ProgramID, *auth.derived)
}

// ========== 读取 ==========

// LoadMint 读取 Mint，账户必须属于代币程序
func LoadMint(ctx *ledger.Context, addr identity.Identity) (*Mint, error) {
	acc, err := ctx.LoadOwned(addr, ProgramID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMintNotFound, addr)
	}
	if err != nil {
		return nil, err
	}
	if len(acc.Data) != MintSize {
		return nil, fmt.Errorf("%w: %s is not a mint", ErrMalformed, addr)
	}
	return DecodeMint(acc.Data)
}

// LoadHolding 读取 Holding，账户必须属于代币程序
func LoadHolding(ctx *ledger.Context, addr identity.Identity) (*Holding, error) {
	acc, err := ctx.LoadOwned(addr, ProgramID)
	if err != nil {
		return nil, err
	}
	if len(acc.Data) != HoldingSize {
		return nil, fmt.Errorf("%w: %s is not a holding account", ErrMalformed, addr)
	}
	return DecodeHolding(acc.Data)
}

// Balance 持有账户余额
func Balance(ctx *ledger.Context, addr identity.Identity) (uint64, error) {
	h, err := LoadHolding(ctx, addr)
	if err != nil {
		return 0, err
	}
	return h.Amount, nil
}

func store(ctx *ledger.Context, addr identity.Identity, data []byte) error {
	return ctx.Store(addr, &ledger.Account{Owner: ProgramID, Data: data})
}

// ========== 指令 ==========

// CreateMint 在 mint 地址上创建代币类型，mint 地址必须签名
func CreateMint(ctx *ledger.Context, mint, authority identity.Identity, decimals uint8) error {
	if decimals > MaxDecimals {
		return fmt.Errorf("%w: %d > %d", ErrInvalidDecimals, decimals, MaxDecimals)
	}
	if authority.IsZero() {
		return fmt.Errorf("%w: zero mint authority", ErrInvalidAuthority)
	}
	tctx := ctx.Invoke(ProgramID)
	if err := tctx.Create(mint, ProgramID, MintSize); err != nil {
		return err
	}
	m := &Mint{Authority: authority, Decimals: decimals}
	if err := store(tctx, mint, m.Encode()); err != nil {
		return err
	}
	tctx.Msg("Instruction: InitializeMint")
	return nil
}

// CreateHolding 为 owner 创建 mint 的持有账户，holding 地址必须签名。
// 派生地址上的持有账户只能由其所属程序通过 InvokeSigned 创建。
func CreateHolding(ctx *ledger.Context, holding, mint, owner identity.Identity) error {
	tctx := ctx.Invoke(ProgramID)
	if _, err := LoadMint(tctx, mint); err != nil {
		return err
	}
	if err := tctx.Create(holding, ProgramID, HoldingSize); err != nil {
		return err
	}
	h := &Holding{Mint: mint, Owner: owner}
	if err := store(tctx, holding, h.Encode()); err != nil {
		return err
	}
	tctx.Msg("Instruction: InitializeAccount")
	return nil
}

// MintTo 增发到持有账户，需要 mint authority 签名
func MintTo(ctx *ledger.Context, mint, to identity.Identity, amount uint64) error {
	tctx := ctx.Invoke(ProgramID)
	m, err := LoadMint(tctx, mint)
	if err != nil {
		return err
	}
	if err := tctx.RequireSigner(m.Authority); err != nil {
		return err
	}
	dst, err := LoadHolding(tctx, to)
	if err != nil {
		return err
	}
	if dst.Mint != mint {
		return fmt.Errorf("%w: %s holds %s", ErrMintMismatch, to, dst.Mint)
	}

	supply, carry := bits.Add64(m.Supply, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: supply", ErrOverflow)
	}
	balance, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: balance", ErrOverflow)
	}
	m.Supply, dst.Amount = supply, balance

	if err := store(tctx, mint, m.Encode()); err != nil {
		return err
	}
	if err := store(tctx, to, dst.Encode()); err != nil {
		return err
	}
	tctx.Msg("Instruction: MintTo")
	return nil
}

// Transfer 从 from 转 amount 到 to。
// 两个账户都必须是 mint 的持有账户，authority 必须是 from 的所有者且已授权。
// 零额转账允许；from == to 时检查通过后不改动任何状态。
func Transfer(ctx *ledger.Context, from, to identity.Identity, authority Authority, mint identity.Identity, amount uint64) error {
	tctx, err := invoke(ctx, authority)
	if err != nil {
		return err
	}

	src, err := LoadHolding(tctx, from)
	if err != nil {
		return err
	}
	dst, err := LoadHolding(tctx, to)
	if err != nil {
		return err
	}
	if src.Mint != mint || dst.Mint != mint {
		return fmt.Errorf("%w: expected %s", ErrMintMismatch, mint)
	}
	if src.Owner != authority.Key() {
		return fmt.Errorf("%w: %s owned by %s", ErrOwnerMismatch, from, src.Owner)
	}
	if err := tctx.RequireSigner(authority.Key()); err != nil {
		return err
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}
	tctx.Msg("Instruction: Transfer")
	if from == to {
		return nil
	}

	credited, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %s", ErrOverflow, to)
	}
	src.Amount -= amount
	dst.Amount = credited

	if err := store(tctx, from, src.Encode()); err != nil {
		return err
	}
	return store(tctx, to, dst.Encode())
}
