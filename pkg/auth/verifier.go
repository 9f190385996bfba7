package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential はトークンが不正・署名不一致・期限切れの場合に返される。
// 呼び出し元への応答には詳細を含めず、ラップされた原因はログにのみ出力する。
var ErrInvalidCredential = errors.New("認証情報が無効です")

// Claims はJWTトークンのクレーム（ペイロード）を表す。
// 主体ID（sub）、発行日時、有効期限はRegisteredClaimsに含まれる。
type Claims struct {
	jwt.RegisteredClaims
	// Role は利用者のロール。
	Role string `json:"role"`
	// Email は利用者のメールアドレス。
	Email string `json:"email"`
}

// Verifier は共有シークレットでHMAC署名されたJWTを検証する。
// 検証結果はキャッシュせず、呼び出しごとに完全に検証する。
type Verifier struct {
	// secret は署名検証用の共有シークレット。起動後は読み取り専用。
	secret []byte
	// parser はアルゴリズムと有効期限の制約を設定済みのパーサー。
	parser *jwt.Parser
}

// NewVerifier は新しいトークン検証器を生成する。
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{
				jwt.SigningMethodHS256.Alg(),
				jwt.SigningMethodHS384.Alg(),
				jwt.SigningMethodHS512.Alg(),
			}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify はトークンを検証し、クレームからPrincipalを取り出す。
// 失敗した場合はErrInvalidCredentialをラップしたエラーを返す。
func (v *Verifier) Verify(token string) (Principal, error) {
	if token == "" {
		return Principal{}, fmt.Errorf("%w: トークンが空です", ErrInvalidCredential)
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, v.keyFunc)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: トークンの検証に失敗", ErrInvalidCredential)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: subクレームがありません", ErrInvalidCredential)
	}

	return Principal{
		Subject: claims.Subject,
		Role:    claims.Role,
		Email:   claims.Email,
	}, nil
}

// keyFunc はHMAC系の署名方式であることを確認してから検証鍵を返す。
func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("想定外の署名方式: %v", token.Header["alg"])
	}
	return v.secret, nil
}
