package vault

import (
	"fmt"
	"testing"

	"securevault/config"
	"securevault/identity"
	"securevault/ledger"
	"securevault/token"
	"securevault/vm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type world struct {
	prog *Program
	sv   vm.StateView

	manager   identity.Identity
	depositor identity.Identity
	recipient identity.Identity

	mint  identity.Identity
	mint2 identity.Identity
	vault identity.DerivedAuthority

	depositorHolding  identity.Identity
	depositorHolding2 identity.Identity
	vaultHolding      identity.Identity
	vaultHolding2     identity.Identity
	recipientHolding  identity.Identity
	managerHolding    identity.Identity
}

// client 以外部客户端身份发起调用
func (w *world) client(signers ...identity.Identity) *ledger.Context {
	return ledger.NewContext(w.sv, identity.Zero, signers...)
}

func newID() identity.Identity { return identity.MustKeypair().Identity() }

func newWorld(t *testing.T) *world {
	t.Helper()
	prog, err := New(config.TestConfig())
	require.NoError(t, err)

	w := &world{
		prog:              prog,
		sv:                vm.NewStateView(nil, nil),
		manager:           newID(),
		depositor:         newID(),
		recipient:         newID(),
		mint:              newID(),
		mint2:             newID(),
		depositorHolding:  newID(),
		depositorHolding2: newID(),
		vaultHolding:      newID(),
		vaultHolding2:     newID(),
		recipientHolding:  newID(),
		managerHolding:    newID(),
	}
	w.vault, err = prog.Derive(w.manager)
	require.NoError(t, err)

	ctx := w.client(w.manager, w.mint, w.mint2,
		w.depositorHolding, w.depositorHolding2, w.vaultHolding, w.vaultHolding2,
		w.recipientHolding, w.managerHolding)
	require.NoError(t, token.CreateMint(ctx, w.mint, w.manager, 9))
	require.NoError(t, token.CreateMint(ctx, w.mint2, w.manager, 9))
	require.NoError(t, token.CreateHolding(ctx, w.depositorHolding, w.mint, w.depositor))
	require.NoError(t, token.CreateHolding(ctx, w.depositorHolding2, w.mint2, w.depositor))
	require.NoError(t, token.CreateHolding(ctx, w.vaultHolding, w.mint, w.vault.Address))
	require.NoError(t, token.CreateHolding(ctx, w.vaultHolding2, w.mint2, w.vault.Address))
	require.NoError(t, token.CreateHolding(ctx, w.recipientHolding, w.mint, w.recipient))
	require.NoError(t, token.CreateHolding(ctx, w.managerHolding, w.mint, w.manager))
	require.NoError(t, token.MintTo(ctx, w.mint, w.depositorHolding, 1000))
	require.NoError(t, token.MintTo(ctx, w.mint2, w.depositorHolding2, 1000))
	return w
}

func (w *world) initialize(t *testing.T) {
	t.Helper()
	require.NoError(t, w.prog.Initialize(w.client(w.manager), w.manager, w.mint, w.vault.Address))
}

func (w *world) balance(t *testing.T, holding identity.Identity) uint64 {
	t.Helper()
	b, err := token.Balance(w.client(), holding)
	require.NoError(t, err)
	return b
}

func (w *world) deposit() DepositAccounts {
	return DepositAccounts{
		Depositor:        w.depositor,
		DepositorHolding: w.depositorHolding,
		VaultHolding:     w.vaultHolding,
		Mint:             w.mint,
		Vault:            w.vault.Address,
	}
}

func (w *world) withdraw(withdrawer identity.Identity) WithdrawAccounts {
	return WithdrawAccounts{
		Withdrawer:       withdrawer,
		Vault:            w.vault.Address,
		VaultHolding:     w.vaultHolding,
		RecipientHolding: w.recipientHolding,
		Mint:             w.mint,
	}
}

// ========== 派生与状态布局 ==========

func TestDeriveDeterministic(t *testing.T) {
	prog, err := New(nil)
	require.NoError(t, err)
	m := newID()

	a, err := prog.Derive(m)
	require.NoError(t, err)
	b, err := prog.Derive(m)
	require.NoError(t, err)
	assert.Equal(t, a.Address, b.Address)
	assert.Equal(t, a.Bump, b.Bump)
	assert.True(t, ledger.IsNonSignable(a.Address))

	other, err := prog.Derive(newID())
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, other.Address)

	cfg := config.TestConfig()
	cfg.Program.DomainTag = "escrow"
	escrow, err := New(cfg)
	require.NoError(t, err)
	c, err := escrow.Derive(m)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, c.Address)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.TestConfig()
	cfg.Program.VaultProgramID = "not-base58-0OIl"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestStateLayout(t *testing.T) {
	s := &VaultState{Manager: newID(), TokenMint: newID()}
	data := s.Encode()
	require.Len(t, data, 72)
	assert.Equal(t, Discriminator[:], data[:8])
	assert.Equal(t, s.Manager[:], data[8:40])
	assert.Equal(t, s.TokenMint[:], data[40:])

	back, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, s, back)

	_, err = DecodeState(make([]byte, StateSize))
	assert.ErrorIs(t, err, ErrAccountDiscriminator)
	_, err = DecodeState(data[:40])
	assert.ErrorIs(t, err, ErrAccountDiscriminator)
}

func TestErrorCodes(t *testing.T) {
	wrapped := fmt.Errorf("deposit: %w", ErrInvalidTokenMint)
	code, ok := vm.ErrorCode(wrapped)
	require.True(t, ok)
	assert.Equal(t, uint32(6001), code)

	code, ok = CodeOf(ErrManagerCannotWithdraw)
	require.True(t, ok)
	assert.Equal(t, uint32(6000), code)
	assert.Contains(t, ErrManagerCannotWithdraw.Error(), "The manager cannot withdraw funds")

	_, ok = CodeOf(token.ErrInsufficientFunds)
	assert.False(t, ok)
}

// ========== Initialize ==========

func TestInitialize(t *testing.T) {
	w := newWorld(t)
	ctx := w.client(w.manager)
	require.NoError(t, w.prog.Initialize(ctx, w.manager, w.mint, w.vault.Address))
	assert.Contains(t, ctx.Messages(), "Initializing vault")

	state, err := w.prog.Load(w.client(), w.vault.Address)
	require.NoError(t, err)
	assert.Equal(t, w.manager, state.Manager)
	assert.Equal(t, w.mint, state.TokenMint)
}

func TestInitializeTwiceFails(t *testing.T) {
	w := newWorld(t)
	w.initialize(t)

	err := w.prog.Initialize(w.client(w.manager), w.manager, w.mint2, w.vault.Address)
	assert.ErrorIs(t, err, ledger.ErrAccountAlreadyExists)

	state, err := w.prog.Load(w.client(), w.vault.Address)
	require.NoError(t, err)
	assert.Equal(t, w.mint, state.TokenMint)
}

func TestInitializeValidation(t *testing.T) {
	w := newWorld(t)

	err := w.prog.Initialize(w.client(), w.manager, w.mint, w.vault.Address)
	assert.ErrorIs(t, err, ledger.ErrMissingSignature)

	err = w.prog.Initialize(w.client(w.manager), w.manager, newID(), w.vault.Address)
	assert.ErrorIs(t, err, token.ErrMintNotFound)

	// 地址必须是 initializer 自己的派生地址
	other, err := w.prog.Derive(w.depositor)
	require.NoError(t, err)
	err = w.prog.Initialize(w.client(w.manager), w.manager, w.mint, other.Address)
	assert.ErrorIs(t, err, ErrVaultAddressMismatch)

	_, err = w.prog.Load(w.client(), w.vault.Address)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestDerivedVaultAddressCannotBeTaken(t *testing.T) {
	w := newWorld(t)
	attacker := newID()

	// 派生地址没有私钥，任何人都无法以它的名义先建账户
	err := token.CreateHolding(w.client(attacker), w.vault.Address, w.mint, attacker)
	assert.ErrorIs(t, err, ledger.ErrMissingSignature)
	err = w.client(attacker).Invoke(w.prog.ID).Create(w.vault.Address, w.prog.ID, StateSize)
	assert.ErrorIs(t, err, ledger.ErrMissingSignature)

	w.initialize(t)
	state, err := w.prog.Load(w.client(), w.vault.Address)
	require.NoError(t, err)
	assert.Equal(t, w.manager, state.Manager)
}

// ========== Deposit ==========

func TestDeposit(t *testing.T) {
	w := newWorld(t)
	w.initialize(t)

	require.NoError(t, w.prog.Deposit(w.client(w.depositor), w.deposit(), 100))
	assert.Equal(t, uint64(900), w.balance(t, w.depositorHolding))
	assert.Equal(t, uint64(100), w.balance(t, w.vaultHolding))

	// 零额存款接受
	require.NoError(t, w.prog.Deposit(w.client(w.depositor), w.deposit(), 0))
	assert.Equal(t, uint64(100), w.balance(t, w.vaultHolding))
}

func TestDepositWrongMint(t *testing.T) {
	w := newWorld(t)
	w.initialize(t)

	acc := w.deposit()
	acc.Mint = w.mint2
	acc.DepositorHolding = w.depositorHolding2
	acc.VaultHolding = w.vaultHolding2
	err := w.prog.Deposit(w.client(w.depositor), acc, 100)
	assert.ErrorIs(t, err, ErrInvalidTokenMint)

	assert.Equal(t, uint64(1000), w.balance(t, w.depositorHolding2))
	assert.Equal(t, uint64(0), w.balance(t, w.vaultHolding2))
}

func TestDepositValidation(t *testing.T) {
	w := newWorld(t)

	err := w.prog.Deposit(w.client(w.depositor), w.deposit(), 1)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	w.initialize(t)

	// 目标账户不属于金库
	acc := w.deposit()
	acc.VaultHolding = w.recipientHolding
	err = w.prog.Deposit(w.client(w.depositor), acc, 1)
	assert.ErrorIs(t, err, ErrVaultHoldingMismatch)

	err = w.prog.Deposit(w.client(), w.deposit(), 1)
	assert.ErrorIs(t, err, ledger.ErrMissingSignature)

	err = w.prog.Deposit(w.client(w.depositor), w.deposit(), 1001)
	assert.ErrorIs(t, err, token.ErrInsufficientFunds)

	// 非金库账户
	acc = w.deposit()
	acc.Vault = w.mint
	err = w.prog.Deposit(w.client(w.depositor), acc, 1)
	assert.ErrorIs(t, err, ledger.ErrIllegalOwner)

	assert.Equal(t, uint64(1000), w.balance(t, w.depositorHolding))
}

// ========== Withdraw ==========

func TestWithdraw(t *testing.T) {
	w := newWorld(t)
	w.initialize(t)
	require.NoError(t, w.prog.Deposit(w.client(w.depositor), w.deposit(), 100))

	require.NoError(t, w.prog.Withdraw(w.client(w.recipient), w.withdraw(w.recipient), 40))
	assert.Equal(t, uint64(60), w.balance(t, w.vaultHolding))
	assert.Equal(t, uint64(40), w.balance(t, w.recipientHolding))
}

func TestManagerCannotWithdraw(t *testing.T) {
	w := newWorld(t)
	w.initialize(t)
	require.NoError(t, w.prog.Deposit(w.client(w.depositor), w.deposit(), 100))

	for _, amount := range []uint64{0, 1, 100, 1 << 40} {
		acc := w.withdraw(w.manager)
		acc.RecipientHolding = w.managerHolding
		err := w.prog.Withdraw(w.client(w.manager), acc, amount)
		assert.ErrorIs(t, err, ErrManagerCannotWithdraw, "amount %d", amount)
	}

	// 即使铸币类型也不对，仍然先报 manager 错误
	acc := w.withdraw(w.manager)
	acc.Mint = w.mint2
	err := w.prog.Withdraw(w.client(w.manager), acc, 1)
	assert.ErrorIs(t, err, ErrManagerCannotWithdraw)

	assert.Equal(t, uint64(100), w.balance(t, w.vaultHolding))
	assert.Equal(t, uint64(0), w.balance(t, w.managerHolding))
}

func TestWithdrawWrongMint(t *testing.T) {
	w := newWorld(t)
	w.initialize(t)
	require.NoError(t, w.prog.Deposit(w.client(w.depositor), w.deposit(), 100))

	acc := w.withdraw(w.recipient)
	acc.Mint = w.mint2
	err := w.prog.Withdraw(w.client(w.recipient), acc, 10)
	assert.ErrorIs(t, err, ErrInvalidTokenMint)
	assert.Equal(t, uint64(100), w.balance(t, w.vaultHolding))
}

func TestWithdrawValidation(t *testing.T) {
	w := newWorld(t)
	w.initialize(t)
	require.NoError(t, w.prog.Deposit(w.client(w.depositor), w.deposit(), 100))

	// 未签名
	err := w.prog.Withdraw(w.client(), w.withdraw(w.recipient), 1)
	assert.ErrorIs(t, err, ledger.ErrMissingSignature)

	err = w.prog.Withdraw(w.client(w.recipient), w.withdraw(w.recipient), 101)
	assert.ErrorIs(t, err, token.ErrInsufficientFunds)

	// 用另一个金库的派生权限动不了这个金库的账户
	other := newID()
	otherVault, err := w.prog.Derive(other)
	require.NoError(t, err)
	require.NoError(t, w.prog.Initialize(w.client(other), other, w.mint, otherVault.Address))
	acc := w.withdraw(w.recipient)
	acc.Vault = otherVault.Address
	err = w.prog.Withdraw(w.client(w.recipient), acc, 1)
	assert.ErrorIs(t, err, token.ErrOwnerMismatch)

	assert.Equal(t, uint64(100), w.balance(t, w.vaultHolding))
}

func TestListVaults(t *testing.T) {
	w := newWorld(t)
	w.initialize(t)
	other := newID()
	otherVault, err := w.prog.Derive(other)
	require.NoError(t, err)
	require.NoError(t, w.prog.Initialize(w.client(other), other, w.mint2, otherVault.Address))

	entries, err := w.prog.ListVaults(w.sv)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	byAddr := map[identity.Identity]VaultState{}
	for _, e := range entries {
		byAddr[e.Address] = e.State
	}
	assert.Equal(t, w.manager, byAddr[w.vault.Address].Manager)
	assert.Equal(t, w.mint2, byAddr[otherVault.Address].TokenMint)
}
