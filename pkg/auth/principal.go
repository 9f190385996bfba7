package auth

import "context"

// RoleAdmin は管理者ロールを表す。削除操作の特権を持つ。
const RoleAdmin = "admin"

// Principal はトークン検証によって得られた利用者情報。
// リクエストの処理中のみ保持され、永続化されない。
type Principal struct {
	// Subject は利用者の一意識別子（JWTのsubクレーム）。
	Subject string
	// Role は利用者のロール（例: "admin"）。
	Role string
	// Email は利用者のメールアドレス。
	Email string
}

// IsAdmin は管理者ロールであるかを返す。
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyPrincipal はコンテキストにPrincipalを格納するためのキー。
const contextKeyPrincipal contextKey = "principal"

// WithPrincipal はコンテキストにPrincipalを設定する。
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// PrincipalFrom はコンテキストからPrincipalを取得する。
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKeyPrincipal).(Principal)
	return p, ok
}
