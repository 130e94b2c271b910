// vault/errors.go
// 金库程序的错误码，编号与链上程序一致（从 6000 开始）
package vault

import (
	"errors"
	"fmt"
)

// Error 程序自定义错误，编号从 6000 开始
type Error struct {
	Code uint32
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("Error Code: %s. Error Number: %d. Error Message: %s.", e.Name, e.Code, e.Msg)
}

// ErrorCode 供回执提取错误码
func (e *Error) ErrorCode() uint32 { return e.Code }

var (
	ErrManagerCannotWithdraw = &Error{Code: 6000, Name: "ManagerCannotWithdraw", Msg: "The manager cannot withdraw funds"}
	ErrInvalidTokenMint      = &Error{Code: 6001, Name: "InvalidTokenMint", Msg: "Invalid token mint"}
	ErrVaultAddressMismatch  = &Error{Code: 6002, Name: "VaultAddressMismatch", Msg: "Vault address does not match its derivation"}
	ErrVaultHoldingMismatch  = &Error{Code: 6003, Name: "VaultHoldingMismatch", Msg: "Token account is not held by the vault"}
	ErrAccountDiscriminator  = &Error{Code: 6004, Name: "AccountDiscriminatorMismatch", Msg: "Account is not a vault"}
)

// CodeOf 取出错误链中的 vault 错误码
func CodeOf(err error) (uint32, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
