// ledger/context.go
// 运行时上下文：在一个 StateView 上给程序提供账户创建、读写、
// 签名者检查与派生权限校验。所有写入都只进入视图，由执行器统一提交。
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"securevault/identity"
	"securevault/keys"
	"securevault/logs"
	"securevault/vm"
)

var (
	ErrAccountAlreadyExists = errors.New("account already in use")
	ErrAccountNotFound      = errors.New("account not found")
	ErrIllegalOwner         = errors.New("account is not owned by the expected program")
	ErrMissingSignature     = errors.New("missing required signature")
	ErrInvalidSeeds         = identity.ErrInvalidSeeds
	ErrDataSizeChanged      = errors.New("account data size cannot change")
)

// IsNonSignable 派生地址的接受条件：不在曲线上，没有对应私钥
func IsNonSignable(address identity.Identity) bool {
	return identity.IsNonSignable(address)
}

// Context 某个程序在一笔交易内的执行上下文
type Context struct {
	sv        vm.StateView
	programID identity.Identity
	caller    identity.Identity // 跨程序调用时的发起方，顶层为零值
	signers   []identity.Identity
	msgs      *[]string
	logger    *logs.Logger
}

// NewContext 顶层上下文，signers 是外层已验签的签名者
func NewContext(sv vm.StateView, programID identity.Identity, signers ...identity.Identity) *Context {
	msgs := make([]string, 0, 4)
	return &Context{
		sv:        sv,
		programID: programID,
		signers:   append([]identity.Identity(nil), signers...),
		msgs:      &msgs,
		logger:    logs.WithComponent("Ledger"),
	}
}

// FromTx 用交易的签名者集合构造上下文
func FromTx(tx *vm.Tx, sv vm.StateView, programID identity.Identity) *Context {
	return NewContext(sv, programID, tx.Signers...)
}

// ProgramID 当前执行的程序
func (c *Context) ProgramID() identity.Identity { return c.programID }

// Caller 发起跨程序调用的程序
func (c *Context) Caller() identity.Identity { return c.caller }

// View 底层状态视图
func (c *Context) View() vm.StateView { return c.sv }

// Msg 记录一条程序日志，最终写进交易回执
func (c *Context) Msg(format string, v ...interface{}) {
	line := fmt.Sprintf(format, v...)
	*c.msgs = append(*c.msgs, line)
	c.logger.Verbose("%s: %s", c.programID.Short(), line)
}

// Messages 本交易到目前为止的所有程序日志（含子调用）
func (c *Context) Messages() []string {
	return append([]string(nil), (*c.msgs)...)
}

// ========== 签名与派生权限 ==========

// IsSigner id 是否在当前签名者集合中
func (c *Context) IsSigner(id identity.Identity) bool {
	for _, s := range c.signers {
		if s == id {
			return true
		}
	}
	return false
}

// RequireSigner 要求 id 已签名
func (c *Context) RequireSigner(id identity.Identity) error {
	if !c.IsSigner(id) {
		return fmt.Errorf("%w: %s", ErrMissingSignature, id)
	}
	return nil
}

// VerifyDerived 派生权限必须属于当前程序，并且能从公开种子复算出地址
func (c *Context) VerifyDerived(auth identity.DerivedAuthority) error {
	if auth.ProgramID != c.programID {
		return fmt.Errorf("%w: authority derived under %s, invoked by %s",
			ErrInvalidSeeds, auth.ProgramID.Short(), c.programID.Short())
	}
	if err := auth.Verify(c.programID); err != nil {
		return err
	}
	if !IsNonSignable(auth.Address) {
		return fmt.Errorf("%w: %s is signable", ErrInvalidSeeds, auth.Address)
	}
	return nil
}

// Invoke 调用另一个程序，签名者集合原样传递
func (c *Context) Invoke(programID identity.Identity) *Context {
	child, _ := c.InvokeSigned(programID)
	return child
}

// InvokeSigned 调用另一个程序，并以当前程序的派生权限追加签名者。
// 每个派生权限都按当前程序重新校验，不接受缓存的结果。
func (c *Context) InvokeSigned(programID identity.Identity, auths ...identity.DerivedAuthority) (*Context, error) {
	signers := make([]identity.Identity, 0, len(c.signers)+len(auths))
	signers = append(signers, c.signers...)
	for _, auth := range auths {
		if err := c.VerifyDerived(auth); err != nil {
			return nil, err
		}
		signers = append(signers, auth.Address)
	}
	return &Context{
		sv:        c.sv,
		programID: programID,
		caller:    c.programID,
		signers:   signers,
		msgs:      c.msgs,
		logger:    c.logger,
	}, nil
}

// ========== 账户读写 ==========

// Exists 地址上是否已有账户
func (c *Context) Exists(address identity.Identity) (bool, error) {
	_, ok, err := c.sv.Get(keys.KeyAccount(address.String()))
	return ok, err
}

// Create 在 address 上分配 size 字节的零值账户，owner 必须是当前程序。
// 新地址本身必须签名；地址已被占用时失败，绝不覆盖。
func (c *Context) Create(address, owner identity.Identity, size int) error {
	if err := c.checkOwner(owner); err != nil {
		return err
	}
	if err := c.RequireSigner(address); err != nil {
		return err
	}
	return c.allocate(address, owner, size)
}

// CreateDerived 在当前程序的派生地址上分配账户，由派生权限代替签名
func (c *Context) CreateDerived(auth identity.DerivedAuthority, owner identity.Identity, size int) error {
	if err := c.checkOwner(owner); err != nil {
		return err
	}
	if err := c.VerifyDerived(auth); err != nil {
		return err
	}
	return c.allocate(auth.Address, owner, size)
}

func (c *Context) checkOwner(owner identity.Identity) error {
	if owner != c.programID {
		return fmt.Errorf("%w: program %s cannot create account for %s",
			ErrIllegalOwner, c.programID.Short(), owner.Short())
	}
	return nil
}

func (c *Context) allocate(address, owner identity.Identity, size int) error {
	if size < 0 {
		return fmt.Errorf("invalid account size %d", size)
	}
	exists, err := c.Exists(address)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, address)
	}

	acc := &Account{Owner: owner, Data: make([]byte, size)}
	c.sv.Set(keys.KeyAccount(address.String()), acc.Encode())
	c.sv.Set(keys.KeyOwnerIndex(owner.String(), address.String()), []byte{})
	c.logger.Debug("created account %s owner=%s size=%d", address.Short(), owner.Short(), size)
	return nil
}

// Load 读取账户
func (c *Context) Load(address identity.Identity) (*Account, error) {
	data, ok, err := c.sv.Get(keys.KeyAccount(address.String()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	return DecodeAccount(data)
}

// LoadOwned 读取账户并校验所属程序
func (c *Context) LoadOwned(address, owner identity.Identity) (*Account, error) {
	acc, err := c.Load(address)
	if err != nil {
		return nil, err
	}
	if acc.Owner != owner {
		return nil, fmt.Errorf("%w: %s owned by %s, expected %s",
			ErrIllegalOwner, address, acc.Owner.Short(), owner.Short())
	}
	return acc, nil
}

// Store 写回账户数据：只有 owner 程序可以写，且数据长度不可变
func (c *Context) Store(address identity.Identity, acc *Account) error {
	if acc.Owner != c.programID {
		return fmt.Errorf("%w: program %s cannot write %s",
			ErrIllegalOwner, c.programID.Short(), address)
	}
	prev, err := c.LoadOwned(address, c.programID)
	if err != nil {
		return err
	}
	if len(prev.Data) != len(acc.Data) {
		return fmt.Errorf("%w: %d -> %d", ErrDataSizeChanged, len(prev.Data), len(acc.Data))
	}
	c.sv.Set(keys.KeyAccount(address.String()), acc.Encode())
	return nil
}

// ListOwned 按所属程序列出账户地址
func (c *Context) ListOwned(owner identity.Identity) ([]identity.Identity, error) {
	return ListOwned(c.sv, owner)
}

// ListOwned 在任意视图上按所属程序列出账户地址（按字节序排列）
func ListOwned(sv vm.StateView, owner identity.Identity) ([]identity.Identity, error) {
	prefix := keys.KeyOwnerIndexPrefix(owner.String())
	kv, err := sv.Scan(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]identity.Identity, 0, len(kv))
	for k := range kv {
		id, err := identity.Parse(k[len(prefix):])
		if err != nil {
			return nil, fmt.Errorf("bad owner index key %q: %w", k, err)
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out, nil
}
