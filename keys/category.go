// keys/category.go
// Key 分类：写集里的每个 WriteOp 都带一个分类，便于追踪和调试
package keys

import "strings"

const (
	CategoryAccount = "account"
	CategoryIndex   = "index"
	CategoryReceipt = "receipt"
	CategoryOther   = "other"
)

var categoryPrefixes = []struct {
	prefix   string
	category string
}{
	{withVer("account_"), CategoryAccount},
	{withVer("owner_"), CategoryIndex},
	{withVer("receipt_"), CategoryReceipt},
}

// CategorizeKey 根据前缀判断 key 的分类
func CategorizeKey(key string) string {
	for _, p := range categoryPrefixes {
		if strings.HasPrefix(key, p.prefix) {
			return p.category
		}
	}
	return CategoryOther
}

// IsStatefulKey 判断是否为可变状态（账户）；回执与索引属于流水
func IsStatefulKey(key string) bool {
	return CategorizeKey(key) == CategoryAccount
}
