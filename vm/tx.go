// vm/tx.go
package vm

import (
	"encoding/binary"

	"securevault/identity"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Payload 交易内容；Encode 必须是确定性的，用于计算 TxID
type Payload interface {
	Kind() string
	Encode() []byte
}

// Tx 交易：种类 + 已验签的签名者集合 + 内容
// 签名本身由外层运行时验证，这里只携带验证结果。
type Tx struct {
	TxID    string
	Kind    string
	Signers []identity.Identity
	Nonce   uint64
	Payload Payload
}

// NewTx 构造交易并计算 TxID
func NewTx(payload Payload, nonce uint64, signers ...identity.Identity) *Tx {
	tx := &Tx{
		Kind:    payload.Kind(),
		Signers: append([]identity.Identity(nil), signers...),
		Nonce:   nonce,
		Payload: payload,
	}
	tx.TxID = ComputeTxID(tx)
	return tx
}

// ComputeTxID double-sha256(kind || nonce || signers || payload)
func ComputeTxID(tx *Tx) string {
	var payload []byte
	if tx.Payload != nil {
		payload = tx.Payload.Encode()
	}
	buf := make([]byte, 0, 2+len(tx.Kind)+8+2+len(tx.Signers)*identity.Size+len(payload))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(tx.Kind)))
	buf = append(buf, tx.Kind...)
	buf = binary.BigEndian.AppendUint64(buf, tx.Nonce)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(tx.Signers)))
	for _, s := range tx.Signers {
		buf = append(buf, s[:]...)
	}
	buf = append(buf, payload...)
	return chainhash.DoubleHashH(buf).String()
}

// IsSigner 判断 id 是否签署了该交易
func (tx *Tx) IsSigner(id identity.Identity) bool {
	for _, s := range tx.Signers {
		if s == id {
			return true
		}
	}
	return false
}

// DefaultKindFn 默认的KindFn实现：优先 tx.Kind，否则取 Payload.Kind()
func DefaultKindFn(tx *Tx) (string, error) {
	if tx == nil {
		return "", ErrNilTx
	}
	if tx.Payload == nil {
		return "", ErrNilPayload
	}
	if tx.Kind != "" {
		return tx.Kind, nil
	}
	return tx.Payload.Kind(), nil
}
