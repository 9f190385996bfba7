// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// ベアラートークンによる認証（公開ルートの判定を含む）、パニックリカバリ、
// CORS設定、エラーレスポンスの共通形式を含む。
package middleware
