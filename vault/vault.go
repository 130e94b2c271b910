// vault/vault.go
// 托管金库程序。manager 可以创建金库，但永远不能从中取款；
// 任何非 manager 的签名者都可以存取。取款由金库的派生权限授权，不存在私钥。
package vault

import (
	"errors"
	"fmt"

	"securevault/config"
	"securevault/identity"
	"securevault/ledger"
	"securevault/logs"
	"securevault/token"
	"securevault/vm"
)

// Program 金库程序实例
type Program struct {
	ID     identity.Identity
	tag    []byte
	logger *logs.Logger
}

// New 按配置创建程序；cfg 为 nil 时使用默认配置
func New(cfg *config.Config) (*Program, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	id, err := identity.Parse(cfg.Program.VaultProgramID)
	if err != nil {
		return nil, fmt.Errorf("vault program id: %w", err)
	}
	return &Program{
		ID:     id,
		tag:    []byte(cfg.Program.DomainTag),
		logger: logs.WithComponent("Vault"),
	}, nil
}

// Derive 金库地址只取决于 manager：seeds = [tag, manager]
func (p *Program) Derive(manager identity.Identity) (identity.DerivedAuthority, error) {
	return identity.FindProgramAddress([][]byte{p.tag, manager[:]}, p.ID)
}

// enter 保证后续操作以金库程序身份执行
func (p *Program) enter(ctx *ledger.Context) *ledger.Context {
	if ctx.ProgramID() == p.ID {
		return ctx
	}
	return ctx.Invoke(p.ID)
}

// Load 读取金库状态，账户必须属于本程序且类型正确
func (p *Program) Load(ctx *ledger.Context, vault identity.Identity) (*VaultState, error) {
	acc, err := ctx.LoadOwned(vault, p.ID)
	if err != nil {
		return nil, err
	}
	return DecodeState(acc.Data)
}

// Initialize 为 initializer 创建金库。
// vault 由调用方传入，必须等于派生地址；已存在时失败，不会覆盖。
func (p *Program) Initialize(ctx *ledger.Context, initializer, mint, vault identity.Identity) error {
	ctx = p.enter(ctx)
	ctx.Msg("Instruction: Initialize")

	if err := ctx.RequireSigner(initializer); err != nil {
		return err
	}
	if _, err := token.LoadMint(ctx, mint); err != nil {
		return err
	}
	auth, err := p.Derive(initializer)
	if err != nil {
		// 启动期失败，调用方换 manager 或重试
		p.logger.Error("derive vault for %s: %v", initializer, err)
		return err
	}
	if auth.Address != vault {
		return fmt.Errorf("%w: got %s, derived %s", ErrVaultAddressMismatch, vault, auth.Address)
	}

	if err := ctx.CreateDerived(auth, p.ID, StateSize); err != nil {
		return err
	}
	state := &VaultState{Manager: initializer, TokenMint: mint}
	if err := ctx.Store(vault, &ledger.Account{Owner: p.ID, Data: state.Encode()}); err != nil {
		return err
	}

	ctx.Msg("Initializing vault")
	p.logger.Info("Initializing vault %s manager=%s mint=%s bump=%d",
		vault.Short(), initializer.Short(), mint.Short(), auth.Bump)
	return nil
}

// DepositAccounts 存款涉及的账户
type DepositAccounts struct {
	Depositor        identity.Identity
	DepositorHolding identity.Identity
	VaultHolding     identity.Identity
	Mint             identity.Identity
	Vault            identity.Identity
}

// Deposit 任何人都可以存入金库接受的代币，由存款人自己授权
func (p *Program) Deposit(ctx *ledger.Context, acc DepositAccounts, amount uint64) error {
	ctx = p.enter(ctx)
	ctx.Msg("Instruction: Deposit")

	state, err := p.Load(ctx, acc.Vault)
	if err != nil {
		return err
	}
	if acc.Mint != state.TokenMint {
		return fmt.Errorf("%w: got %s, vault accepts %s", ErrInvalidTokenMint, acc.Mint, state.TokenMint)
	}
	holding, err := token.LoadHolding(ctx, acc.VaultHolding)
	if err != nil {
		return err
	}
	if holding.Owner != acc.Vault {
		return fmt.Errorf("%w: %s owned by %s", ErrVaultHoldingMismatch, acc.VaultHolding, holding.Owner)
	}

	if err := token.Transfer(ctx, acc.DepositorHolding, acc.VaultHolding,
		token.Signer(acc.Depositor), acc.Mint, amount); err != nil {
		return err
	}
	p.logger.Debug("deposit %d into %s from %s", amount, acc.Vault.Short(), acc.Depositor.Short())
	return nil
}

// WithdrawAccounts 取款涉及的账户
type WithdrawAccounts struct {
	Withdrawer       identity.Identity
	Vault            identity.Identity
	VaultHolding     identity.Identity
	RecipientHolding identity.Identity
	Mint             identity.Identity
}

// Withdraw 非 manager 的签名者从金库取款，金库以派生权限授权转出。
// 派生权限每次调用重新计算，不读取任何缓存的 bump。
func (p *Program) Withdraw(ctx *ledger.Context, acc WithdrawAccounts, amount uint64) error {
	ctx = p.enter(ctx)
	ctx.Msg("Instruction: Withdraw")

	state, err := p.Load(ctx, acc.Vault)
	if err != nil {
		return err
	}
	if acc.Withdrawer == state.Manager {
		return ErrManagerCannotWithdraw
	}
	if acc.Mint != state.TokenMint {
		return fmt.Errorf("%w: got %s, vault accepts %s", ErrInvalidTokenMint, acc.Mint, state.TokenMint)
	}
	if err := ctx.RequireSigner(acc.Withdrawer); err != nil {
		return err
	}

	auth, err := p.Derive(state.Manager)
	if err != nil {
		return err
	}
	if auth.Address != acc.Vault {
		return fmt.Errorf("%w: got %s, derived %s", ErrVaultAddressMismatch, acc.Vault, auth.Address)
	}

	if err := token.Transfer(ctx, acc.VaultHolding, acc.RecipientHolding,
		token.Derived(auth), acc.Mint, amount); err != nil {
		return err
	}
	p.logger.Debug("withdraw %d from %s by %s", amount, acc.Vault.Short(), acc.Withdrawer.Short())
	return nil
}

// Entry 一个金库及其状态
type Entry struct {
	Address identity.Identity `json:"address"`
	State   VaultState        `json:"state"`
}

// ListVaults 列出本程序拥有的全部金库，跳过类型不符的账户
func (p *Program) ListVaults(sv vm.StateView) ([]Entry, error) {
	addrs, err := ledger.ListOwned(sv, p.ID)
	if err != nil {
		return nil, err
	}
	ctx := ledger.NewContext(sv, p.ID)
	out := make([]Entry, 0, len(addrs))
	for _, addr := range addrs {
		state, err := p.Load(ctx, addr)
		if errors.Is(err, ErrAccountDiscriminator) {
			p.logger.Warn("skip non-vault account %s", addr)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Address: addr, State: *state})
	}
	return out, nil
}
