// Package auth はベアラートークン（HMAC署名のJWT）の検証と、
// 検証済みの利用者情報（Principal）のリクエストスコープでの受け渡しを提供する。
//
// トークンの発行は外部の認証サービスが担当する。このパッケージは検証のみを行う。
package auth
