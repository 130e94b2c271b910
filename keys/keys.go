// keys/keys.go
// 统一的 Key 定义包，供 VM、ledger 和 DB 模块共同使用
package keys

import (
	"strings"
)

// ===================== 版本控制 =====================
// 设置全局 Key 版本前缀（例如 "v1" → 产出 "v1_<key>"）。
const KeyVersion = "v1"

// withVer 把版本号拼到最前面（保持下划线风格：v1_<...>）
func withVer(s string) string {
	if KeyVersion == "" {
		return s
	}
	return KeyVersion + "_" + s
}

// StripVersion 把带版本的键去掉版本前缀
func StripVersion(prefixed string) string {
	if KeyVersion == "" {
		return prefixed
	}
	return strings.TrimPrefix(prefixed, KeyVersion+"_")
}

// ===================== 账户相关 =====================

// KeyAccount 账户数据（owner + data）
// 例：v1_account_<base58 address>
func KeyAccount(addr string) string {
	return withVer("account_" + addr)
}

// KeyAccountPrefix 所有账户的前缀
func KeyAccountPrefix() string {
	return withVer("account_")
}

// AddressFromAccountKey 从账户 key 中取回地址
func AddressFromAccountKey(key string) (string, bool) {
	p := KeyAccountPrefix()
	if !strings.HasPrefix(key, p) {
		return "", false
	}
	return key[len(p):], true
}

// KeyOwnerIndex 按所属程序索引账户，值为空
// 例：v1_owner_<program>_<address>
func KeyOwnerIndex(owner, addr string) string {
	return withVer("owner_" + owner + "_" + addr)
}

// KeyOwnerIndexPrefix 某个程序下所有账户索引的前缀
func KeyOwnerIndexPrefix(owner string) string {
	return withVer("owner_" + owner + "_")
}

// ===================== 交易相关 =====================

// KeyReceipt 交易执行回执
// 例：v1_receipt_<txID>
func KeyReceipt(txID string) string {
	return withVer("receipt_" + txID)
}

// KeyReceiptPrefix 回执前缀
func KeyReceiptPrefix() string {
	return withVer("receipt_")
}
