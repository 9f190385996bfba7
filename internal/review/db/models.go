package reviewdb

import "time"

// Review は書籍に対するユーザーのレビュー。
type Review struct {
	// ID はレビューの一意識別子。挿入時にストアが採番する。
	ID string
	// BookID はレビュー対象の書籍ID。作成後は変更されない。
	BookID string
	// UserID はレビューを作成したユーザーのID。作成後は変更されない。
	UserID string
	// Rating は評価（1〜5）。
	Rating int
	// ReviewText はレビュー本文。評価のみの場合は空文字列。
	ReviewText string
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は評価または本文の最終更新日時。
	UpdatedAt time.Time
	// IsVerified は書籍を実際に借りたユーザーによるレビューかを表す。現状は常にfalse。
	IsVerified bool
}
