package reviewdb

import (
	"context"
	"errors"
)

var (
	// ErrNotFound は指定されたレビューが存在しないことを表す。
	ErrNotFound = errors.New("レビューが見つかりません")
	// ErrDuplicate は同じ書籍とユーザーの組み合わせのレビューが既に存在することを表す。
	ErrDuplicate = errors.New("同じ書籍に対するレビューが既に存在します")
)

// Store はレビューの永続化層。
// 一覧系のメソッドは作成日時の降順（同時刻の場合はIDの降順）で返す。
type Store interface {
	// FindAll はすべてのレビューを返す。
	FindAll(ctx context.Context) ([]Review, error)
	// FindByBookID は書籍のレビューを返す。
	FindByBookID(ctx context.Context, bookID string) ([]Review, error)
	// FindByUserID はユーザーのレビューを返す。
	FindByUserID(ctx context.Context, userID string) ([]Review, error)
	// FindByBookAndUser は書籍とユーザーの組み合わせでレビューを返す。存在しない場合はErrNotFound。
	FindByBookAndUser(ctx context.Context, bookID, userID string) (Review, error)
	// FindByID はIDでレビューを返す。存在しない場合はErrNotFound。
	FindByID(ctx context.Context, id string) (Review, error)
	// Save はIDが空なら挿入してIDを採番し、それ以外なら評価と本文と更新日時を更新する。
	Save(ctx context.Context, r Review) (Review, error)
	// Delete はレビューを削除する。存在しない場合はErrNotFound。
	Delete(ctx context.Context, id string) error
	// DeleteByBookID は書籍のレビューをすべて削除し、削除件数を返す。
	DeleteByBookID(ctx context.Context, bookID string) (int64, error)
	// CountByUserID はユーザーのレビュー件数を返す。
	CountByUserID(ctx context.Context, userID string) (int64, error)
	// Close は接続を解放する。
	Close() error
}
