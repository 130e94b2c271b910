// token/state.go
// 代币账户记录：Mint（代币类型）与 Holding（某身份持有某代币的余额）。
// 两者都用定长字段编码，保证账户大小在创建后不变。
package token

import (
	"bytes"
	"errors"
	"fmt"

	"securevault/identity"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrUninitialized = errors.New("token account is not initialized")
	ErrMalformed     = errors.New("malformed token account")
)

// Mint 代币类型
type Mint struct {
	Authority identity.Identity
	Supply    uint64
	Decimals  uint8
}

// Holding 持有账户
type Holding struct {
	Mint   identity.Identity
	Owner  identity.Identity
	Amount uint64
}

var (
	// MintSize Mint 账户的数据长度
	MintSize = len((&Mint{}).Encode())
	// HoldingSize Holding 账户的数据长度
	HoldingSize = len((&Holding{}).Encode())
)

func appendIdentity(b []byte, num protowire.Number, id identity.Identity) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, id[:])
}

func appendFixed64(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

// Encode 1=authority, 2=supply(fixed64), 3=decimals(fixed32)
func (m *Mint) Encode() []byte {
	b := make([]byte, 0, 48)
	b = appendIdentity(b, 1, m.Authority)
	b = appendFixed64(b, 2, m.Supply)
	b = protowire.AppendTag(b, 3, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, uint32(m.Decimals))
}

// Encode 1=mint, 2=owner, 3=amount(fixed64)
func (h *Holding) Encode() []byte {
	b := make([]byte, 0, 80)
	b = appendIdentity(b, 1, h.Mint)
	b = appendIdentity(b, 2, h.Owner)
	return appendFixed64(b, 3, h.Amount)
}

// fieldReader 逐字段读取定长记录
type fieldReader struct {
	b   []byte
	err error
}

func (r *fieldReader) tag(want protowire.Number, typ protowire.Type) bool {
	if r.err != nil {
		return false
	}
	num, got, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		r.err = protowire.ParseError(n)
		return false
	}
	if num != want || got != typ {
		r.err = fmt.Errorf("field %d: unexpected tag %d/%d", want, num, got)
		return false
	}
	r.b = r.b[n:]
	return true
}

func (r *fieldReader) ident(num protowire.Number) identity.Identity {
	if !r.tag(num, protowire.BytesType) {
		return identity.Zero
	}
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		r.err = protowire.ParseError(n)
		return identity.Zero
	}
	r.b = r.b[n:]
	id, err := identity.FromBytes(v)
	if err != nil {
		r.err = err
	}
	return id
}

func (r *fieldReader) fixed64(num protowire.Number) uint64 {
	if !r.tag(num, protowire.Fixed64Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed64(r.b)
	if n < 0 {
		r.err = protowire.ParseError(n)
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *fieldReader) fixed32(num protowire.Number) uint32 {
	if !r.tag(num, protowire.Fixed32Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed32(r.b)
	if n < 0 {
		r.err = protowire.ParseError(n)
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *fieldReader) done() error {
	if r.err == nil && len(r.b) != 0 {
		r.err = fmt.Errorf("%d trailing bytes", len(r.b))
	}
	if r.err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, r.err)
	}
	return nil
}

// 刚分配的账户数据全为零
func isZeroed(data []byte) bool {
	return len(data) > 0 && bytes.Count(data, []byte{0}) == len(data)
}

// DecodeMint 解析 Mint 账户数据
func DecodeMint(data []byte) (*Mint, error) {
	if isZeroed(data) {
		return nil, ErrUninitialized
	}
	r := &fieldReader{b: data}
	m := &Mint{
		Authority: r.ident(1),
		Supply:    r.fixed64(2),
	}
	dec := r.fixed32(3)
	if err := r.done(); err != nil {
		return nil, err
	}
	if dec > MaxDecimals {
		return nil, fmt.Errorf("%w: decimals %d", ErrMalformed, dec)
	}
	m.Decimals = uint8(dec)
	return m, nil
}

// DecodeHolding 解析 Holding 账户数据
func DecodeHolding(data []byte) (*Holding, error) {
	if isZeroed(data) {
		return nil, ErrUninitialized
	}
	r := &fieldReader{b: data}
	h := &Holding{
		Mint:   r.ident(1),
		Owner:  r.ident(2),
		Amount: r.fixed64(3),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return h, nil
}
