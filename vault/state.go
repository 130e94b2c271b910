// vault/state.go
// VaultState：每个 manager 一条，创建后 manager 与 tokenMint 都不可变。
// 布局：8 字节账户类型标识 + manager(32) + tokenMint(32)
package vault

import (
	"bytes"
	"fmt"

	"securevault/identity"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	DiscriminatorSize = 8
	// StateSize 创建账户时分配的大小
	StateSize = DiscriminatorSize + identity.Size + identity.Size
)

// Discriminator sha256("account:VaultState") 前 8 字节
var Discriminator = func() [DiscriminatorSize]byte {
	var d [DiscriminatorSize]byte
	copy(d[:], chainhash.HashB([]byte("account:VaultState")))
	return d
}()

// VaultState 金库状态
type VaultState struct {
	Manager   identity.Identity `json:"manager"`
	TokenMint identity.Identity `json:"token_mint"`
}

// Encode 定长编码
func (s *VaultState) Encode() []byte {
	b := make([]byte, 0, StateSize)
	b = append(b, Discriminator[:]...)
	b = append(b, s.Manager[:]...)
	return append(b, s.TokenMint[:]...)
}

// DecodeState 解析账户数据；类型标识不符（包括尚未写入的零值账户）时失败
func DecodeState(data []byte) (*VaultState, error) {
	if len(data) != StateSize {
		return nil, fmt.Errorf("%w: size %d", ErrAccountDiscriminator, len(data))
	}
	if !bytes.Equal(data[:DiscriminatorSize], Discriminator[:]) {
		return nil, ErrAccountDiscriminator
	}
	s := &VaultState{}
	copy(s.Manager[:], data[DiscriminatorSize:])
	copy(s.TokenMint[:], data[DiscriminatorSize+identity.Size:])
	return s, nil
}
