// Package review はレビューサービスの本体を提供する。
//
// Service はレビューに関するビジネスルールを担う。
//   - 1ユーザーにつき1書籍1レビュー
//   - 更新は作成者本人のみ
//   - 削除は作成者本人または管理者のみ
//   - 書籍単位の一括削除は管理者のみ
//
// Server は Service を gin のHTTPルートとして公開する。
package review
