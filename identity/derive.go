// identity/derive.go
// 程序派生地址（PDA）：由公开种子 + 程序 ID 确定性计算，且不在曲线上，
// 因此不存在任何私钥能控制它，只有拥有该派生关系的程序可以为其授权。
package identity

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// MaxSeeds 单次派生允许的种子个数（含 bump）
	MaxSeeds = 16
	// MaxSeedLen 单个种子的最大长度
	MaxSeedLen = 32
	// pdaMarker 拼在哈希输入末尾的固定标记
	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrMaxSeedLengthExceeded = errors.New("seed length or count exceeded")
	// ErrInvalidSeeds 结果落在曲线上（可签名），不能作为派生地址
	ErrInvalidSeeds = errors.New("provided seeds do not result in a valid derived address")
	// ErrNoViableBump 255 个 bump 都落在曲线上
	ErrNoViableBump = errors.New("unable to find a viable derived address bump seed")
)

// IsNonSignable 运行时对派生地址的接受条件
func IsNonSignable(id Identity) bool {
	return !IsOnCurve(id)
}

// CreateProgramAddress sha256(seed_1 || ... || seed_n || programID || marker)
func CreateProgramAddress(seeds [][]byte, programID Identity) (Identity, error) {
	if len(seeds) > MaxSeeds {
		return Zero, fmt.Errorf("%w: %d seeds", ErrMaxSeedLengthExceeded, len(seeds))
	}
	size := len(programID) + len(pdaMarker)
	for i, s := range seeds {
		if len(s) > MaxSeedLen {
			return Zero, fmt.Errorf("%w: seed %d has %d bytes", ErrMaxSeedLengthExceeded, i, len(s))
		}
		size += len(s)
	}

	buf := make([]byte, 0, size)
	for _, s := range seeds {
		buf = append(buf, s...)
	}
	buf = append(buf, programID[:]...)
	buf = append(buf, pdaMarker...)

	var addr Identity
	copy(addr[:], chainhash.HashB(buf))
	if IsOnCurve(addr) {
		return Zero, ErrInvalidSeeds
	}
	return addr, nil
}

// FindProgramAddress 从 255 开始递减搜索 bump，返回第一个不可签名的地址
func FindProgramAddress(seeds [][]byte, programID Identity) (DerivedAuthority, error) {
	if len(seeds) >= MaxSeeds {
		return DerivedAuthority{}, fmt.Errorf("%w: %d seeds leave no room for bump", ErrMaxSeedLengthExceeded, len(seeds))
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if errors.Is(err, ErrInvalidSeeds) {
			continue
		}
		if err != nil {
			return DerivedAuthority{}, err
		}
		return DerivedAuthority{
			ProgramID: programID,
			Seeds:     cloneSeeds(seeds),
			Bump:      uint8(bump),
			Address:   addr,
		}, nil
	}
	return DerivedAuthority{}, ErrNoViableBump
}

// DerivedAuthority 派生权限：地址 + 重新推导所需的全部公开输入。
// 只在内存中按需计算，从不持久化。
type DerivedAuthority struct {
	ProgramID Identity
	Seeds     [][]byte
	Bump      uint8
	Address   Identity
}

// SignerSeeds 种子 + bump 字节，即运行时用来复核的完整输入
func (a DerivedAuthority) SignerSeeds() [][]byte {
	out := cloneSeeds(a.Seeds)
	return append(out, []byte{a.Bump})
}

// Verify 用 programID 复算地址，必须与 Address 一致
func (a DerivedAuthority) Verify(programID Identity) error {
	addr, err := CreateProgramAddress(a.SignerSeeds(), programID)
	if err != nil {
		return err
	}
	if addr != a.Address {
		return fmt.Errorf("%w: derived %s, expected %s", ErrInvalidSeeds, addr, a.Address)
	}
	return nil
}

func cloneSeeds(seeds [][]byte) [][]byte {
	out := make([][]byte, len(seeds), len(seeds)+1)
	for i, s := range seeds {
		out[i] = append([]byte(nil), s...)
	}
	return out
}
