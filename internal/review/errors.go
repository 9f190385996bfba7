package review

import (
	"errors"
	"fmt"
	"net/http"
)

// Code はドメインエラーの種別。
type Code string

const (
	// CodeValidation は入力値が不正であることを表す。
	CodeValidation Code = "VALIDATION"
	// CodeUnauthenticated は認証済みの利用者がいないことを表す。
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	// CodeForbidden は所有権または権限が不足していることを表す。
	CodeForbidden Code = "FORBIDDEN"
	// CodeNotFound はレビューが存在しないことを表す。
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict は同じ書籍に対するレビューが既に存在することを表す。
	CodeConflict Code = "CONFLICT"
)

// HTTPStatus はエラー種別に対応するHTTPステータスコードを返す。
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error は種別付きのドメインエラー。
// Message はそのままレスポンスに含めてよい内容に限る。
type Error struct {
	Code    Code
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return e.Message
}

// Is は種別が同じ*Errorであれば一致とみなす。
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus はエラーに対応するHTTPステータスコードを返す。
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// errors.Is で判定するための番兵エラー。
var (
	ErrValidation      = &Error{Code: CodeValidation, Message: "入力値が不正です"}
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated, Message: "認証が必要です"}
	ErrForbidden       = &Error{Code: CodeForbidden, Message: "この操作を行う権限がありません"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "レビューが見つかりません"}
	ErrConflict        = &Error{Code: CodeConflict, Message: "この書籍には既にレビューを投稿済みです"}
)

func validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}
