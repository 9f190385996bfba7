// Package reviewdb はレビューの永続化を担当する。
//
// Store インターフェースと、その2つの実装を提供する。
// SQLiteStore は sqlx と modernc.org/sqlite を使い、スキーマは埋め込みマイグレーションで適用する。
// MongoStore は MongoDB の reviews コレクションを使う。
//
// どちらの実装も (book_id, user_id) の一意制約を持ち、重複挿入は ErrDuplicate として返す。
package reviewdb
