// identity/identity.go
// 账户身份：32 字节不透明标识，文本形式为 base58
package identity

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/sign/eddsa"
	"go.dedis.ch/kyber/v3/util/random"
)

// Size 身份字节长度
const Size = 32

var (
	ErrInvalidLength = errors.New("identity must be 32 bytes")
	ErrInvalidBase58 = errors.New("invalid base58 identity")
)

// Identity 账户、Mint、程序共用的身份类型，可直接用 == 比较
type Identity [Size]byte

// Zero 默认身份（全 0）
var Zero Identity

// suite 只用于曲线点解码
var suite = edwards25519.NewBlakeSHA256Ed25519()

// FromBytes 从 32 字节构造身份
func FromBytes(b []byte) (Identity, error) {
	var id Identity
	if len(b) != Size {
		return id, fmt.Errorf("%w: got %d", ErrInvalidLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Parse 解析 base58 文本
func Parse(s string) (Identity, error) {
	raw := base58.Decode(s)
	if len(raw) == 0 {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidBase58, s)
	}
	return FromBytes(raw)
}

// MustParse 仅用于常量和测试
func MustParse(s string) Identity {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromSeed 由任意标签确定性地生成身份（sha256），用于程序 ID 等固定地址
func FromSeed(seed string) Identity {
	var id Identity
	copy(id[:], chainhash.HashB([]byte(seed)))
	return id
}

func (id Identity) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, id[:])
	return out
}

// String base58 文本
func (id Identity) String() string {
	return base58.Encode(id[:])
}

// Short 日志里用的缩写
func (id Identity) Short() string {
	s := id.String()
	if len(s) <= 8 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}

func (id Identity) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id Identity) IsZero() bool {
	return id == Zero
}

func (id Identity) Equal(other Identity) bool {
	return id == other
}

func (id Identity) Compare(other Identity) int {
	return bytes.Compare(id[:], other[:])
}

// MarshalText 让 Identity 在 JSON/YAML 中以 base58 出现
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IsOnCurve 判断 32 字节能否解码为 Ed25519 曲线点。
// 在曲线上的地址理论上存在对应私钥。
func IsOnCurve(id Identity) bool {
	p := suite.Point()
	return p.UnmarshalBinary(id[:]) == nil
}

// ========== 密钥对 ==========

// Keypair Ed25519 密钥对，公钥即普通（可签名）身份
type Keypair struct {
	signer *eddsa.EdDSA
	id     Identity
}

// NewKeypair 随机生成密钥对
func NewKeypair() (*Keypair, error) {
	signer := eddsa.NewEdDSA(random.New())
	return keypairFrom(signer)
}

func keypairFrom(signer *eddsa.EdDSA) (*Keypair, error) {
	pub, err := signer.Public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	id, err := FromBytes(pub)
	if err != nil {
		return nil, err
	}
	return &Keypair{signer: signer, id: id}, nil
}

// MustKeypair 测试辅助
func MustKeypair() *Keypair {
	kp, err := NewKeypair()
	if err != nil {
		panic(err)
	}
	return kp
}

// Identity 公钥身份
func (k *Keypair) Identity() Identity {
	return k.id
}

// Sign 对消息签名（64 字节）
func (k *Keypair) Sign(msg []byte) ([]byte, error) {
	return k.signer.Sign(msg)
}

// Verify 校验 id 对 msg 的签名
func Verify(id Identity, msg, sig []byte) error {
	pub := suite.Point()
	if err := pub.UnmarshalBinary(id[:]); err != nil {
		return fmt.Errorf("identity %s is not a public key: %w", id.Short(), err)
	}
	return eddsa.Verify(pub, msg, sig)
}
