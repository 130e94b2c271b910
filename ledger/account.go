// ledger/account.go
// 账户模型：每个地址一条记录，Owner 是唯一有权写 Data 的程序。
package ledger

import (
	"errors"
	"fmt"

	"securevault/identity"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldOwner protowire.Number = 1
	fieldData  protowire.Number = 2
)

var ErrMalformedAccount = errors.New("malformed account record")

// Account 账户
type Account struct {
	Owner identity.Identity
	Data  []byte
}

// Encode protobuf 线格式：1=owner bytes, 2=data bytes
func (a *Account) Encode() []byte {
	b := make([]byte, 0, 2*protowire.SizeTag(1)+protowire.SizeBytes(identity.Size)+protowire.SizeBytes(len(a.Data)))
	b = protowire.AppendTag(b, fieldOwner, protowire.BytesType)
	b = protowire.AppendBytes(b, a.Owner[:])
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	b = protowire.AppendBytes(b, a.Data)
	return b
}

// DecodeAccount 解析 Encode 的输出；未知字段跳过
func DecodeAccount(b []byte) (*Account, error) {
	acc := &Account{Data: []byte{}}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedAccount, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldOwner && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: owner: %v", ErrMalformedAccount, protowire.ParseError(m))
			}
			owner, err := identity.FromBytes(v)
			if err != nil {
				return nil, fmt.Errorf("%w: owner: %v", ErrMalformedAccount, err)
			}
			acc.Owner = owner
			n = m
		case num == fieldData && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("%w: data: %v", ErrMalformedAccount, protowire.ParseError(m))
			}
			acc.Data = append([]byte{}, v...)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedAccount, num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return acc, nil
}
