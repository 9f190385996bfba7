package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/review/pkg/auth"
)

// headerKeyUserID は認証済みユーザーIDをレスポンスに付与するHTTPヘッダーキー。
const headerKeyUserID = "X-User-ID"

// contextKeyPrincipal はGinコンテキストにPrincipalを格納するためのキー。
const contextKeyPrincipal = "principal"

// TokenVerifier はベアラートークンを検証してPrincipalを返す。
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Route は認証処理の対象外とするルートの定義。
type Route struct {
	// Method はHTTPメソッド。空文字列の場合はすべてのメソッドに一致する。
	Method string
	// Path は一致させるパス。
	Path string
	// Prefix がtrueの場合、Pathを前方一致で比較する。
	Prefix bool
}

// matches はリクエストのメソッドとパスがルート定義に一致するかを返す。
func (r Route) matches(method, path string) bool {
	if r.Method != "" && r.Method != method {
		return false
	}
	if r.Prefix {
		return strings.HasPrefix(path, r.Path)
	}
	return path == r.Path
}

// PublicRoutes は認証処理を完全にスキップする公開ルートの集合。
type PublicRoutes []Route

// IsPublic は指定されたリクエストが公開ルートに該当するかを返す。
func (p PublicRoutes) IsPublic(method, path string) bool {
	for _, r := range p {
		if r.matches(method, path) {
			return true
		}
	}
	return false
}

// DefaultPublicRoutes はレビューサービスの公開ルートを返す。
// ヘルスチェック、APIドキュメント、レビュー一覧と書籍別レビュー（統計を含む）の参照が該当する。
func DefaultPublicRoutes() PublicRoutes {
	return PublicRoutes{
		{Path: "/"},
		{Path: "/health"},
		{Path: "/docs", Prefix: true},
		{Path: "/swagger", Prefix: true},
		{Method: http.MethodGet, Path: "/reviews"},
		{Method: http.MethodGet, Path: "/reviews/book/", Prefix: true},
	}
}

// Authenticate はベアラートークンを検証してPrincipalをコンテキストに設定するGinミドルウェアを返す。
//
// 公開ルートではトークンを一切参照しない。それ以外のルートでも、トークンが無い場合や
// 検証に失敗した場合にリクエストを中断しない。未認証のまま後続へ渡し、
// 保護された操作の拒否はビジネス層が行う。
func Authenticate(verifier TokenVerifier, public PublicRoutes, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if public.IsPublic(c.Request.Method, c.Request.URL.Path) {
			c.Next()
			return
		}

		// パイプライン上で既に認証済みであれば再検証しない
		if _, ok := GetPrincipal(c); ok {
			c.Next()
			return
		}

		tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || tokenString == "" {
			c.Next()
			return
		}

		principal, err := verifier.Verify(tokenString)
		if err != nil {
			logger.Warn("トークンの検証に失敗しました",
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.String("error", err.Error()),
			)
			c.Next()
			return
		}

		SetPrincipal(c, principal)
		c.Header(headerKeyUserID, principal.Subject)
		c.Next()
	}
}

// SetPrincipal はGinコンテキストとリクエストコンテキストの両方にPrincipalを設定する。
func SetPrincipal(c *gin.Context, p auth.Principal) {
	c.Set(contextKeyPrincipal, p)
	c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
}

// GetPrincipal はGinコンテキストからPrincipalを取得する。
// Authenticateミドルウェアで認証されていない場合はfalseを返す。
func GetPrincipal(c *gin.Context) (auth.Principal, bool) {
	if v, ok := c.Get(contextKeyPrincipal); ok {
		if p, ok := v.(auth.Principal); ok {
			return p, true
		}
	}
	return auth.PrincipalFrom(c.Request.Context())
}
