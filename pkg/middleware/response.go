package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse はエラー時のJSONレスポンス構造。
type ErrorResponse struct {
	// Error はHTTPステータスの理由句（例: "Unauthorized"）。
	Error string `json:"error"`
	// Message は利用者向けのエラーメッセージ。内部情報は含めない。
	Message string `json:"message"`
	// Timestamp はエラー発生日時（RFC3339形式）。
	Timestamp string `json:"timestamp"`
}

// AbortWithError はエラーレスポンスを返してリクエスト処理を中断する。
func AbortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
