package reviewdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nao1215/review/pkg/migration"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout はSQLiteに保存する日時の形式。
// 固定長のUTC表記なので文字列の大小関係が時刻の前後関係と一致する。
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// reviewColumns はSELECT対象のカラム一覧。
const reviewColumns = `id, book_id, user_id, rating, review_text, created_at, updated_at, is_verified`

// reviewRow はreviewsテーブルの1行。
type reviewRow struct {
	ID         string `db:"id"`
	BookID     string `db:"book_id"`
	UserID     string `db:"user_id"`
	Rating     int    `db:"rating"`
	ReviewText string `db:"review_text"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
	IsVerified bool   `db:"is_verified"`
}

// toReview はDB行をドメインモデルに変換する。
func (r reviewRow) toReview() (Review, error) {
	createdAt, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return Review{}, fmt.Errorf("作成日時の解析に失敗: %w", err)
	}
	updatedAt, err := time.Parse(timeLayout, r.UpdatedAt)
	if err != nil {
		return Review{}, fmt.Errorf("更新日時の解析に失敗: %w", err)
	}
	return Review{
		ID:         r.ID,
		BookID:     r.BookID,
		UserID:     r.UserID,
		Rating:     r.Rating,
		ReviewText: r.ReviewText,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
		IsVerified: r.IsVerified,
	}, nil
}

// formatTime は日時を保存用の文字列に変換する。
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// SQLiteStore はSQLiteを使ったStoreの実装。
type SQLiteStore struct {
	// db はsqlxでラップしたSQLite接続。
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite はSQLiteデータベースを開き、マイグレーションを適用したStoreを返す。
// dsnにはファイルパスまたは ":memory:" を指定する。
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	// インメモリDBは接続ごとに別のDBになるため、接続を1本に固定する
	if strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	if _, err := migration.Run(ctx, db.DB, migrationsFS, "migrations", logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// sqliteDSN はbusy_timeoutとWALを有効にしたDSNを組み立てる。
func sqliteDSN(dsn string) string {
	pragmas := "_pragma=busy_timeout(5000)"
	if !strings.HasPrefix(dsn, ":memory:") && !strings.Contains(dsn, "mode=memory") {
		pragmas += "&_pragma=journal_mode(WAL)"
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	return dsn + "?" + pragmas
}

// FindAll はすべてのレビューを新しい順に返す。
func (s *SQLiteStore) FindAll(ctx context.Context) ([]Review, error) {
	return s.selectReviews(ctx,
		`SELECT `+reviewColumns+` FROM reviews ORDER BY created_at DESC, id DESC`)
}

// FindByBookID は書籍のレビューを新しい順に返す。
func (s *SQLiteStore) FindByBookID(ctx context.Context, bookID string) ([]Review, error) {
	return s.selectReviews(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE book_id = ? ORDER BY created_at DESC, id DESC`, bookID)
}

// FindByUserID はユーザーのレビューを新しい順に返す。
func (s *SQLiteStore) FindByUserID(ctx context.Context, userID string) ([]Review, error) {
	return s.selectReviews(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// FindByBookAndUser は書籍とユーザーの組み合わせでレビューを返す。
func (s *SQLiteStore) FindByBookAndUser(ctx context.Context, bookID, userID string) (Review, error) {
	return s.getReview(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE book_id = ? AND user_id = ?`, bookID, userID)
}

// FindByID はIDでレビューを返す。
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (Review, error) {
	return s.getReview(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
}

// Save はレビューを挿入または更新する。
func (s *SQLiteStore) Save(ctx context.Context, r Review) (Review, error) {
	if r.ID == "" {
		return s.insert(ctx, r)
	}
	return s.update(ctx, r)
}

// insert は新しいIDを採番してレビューを挿入する。
func (s *SQLiteStore) insert(ctx context.Context, r Review) (Review, error) {
	r.ID = uuid.New().String()
	row := reviewRow{
		ID:         r.ID,
		BookID:     r.BookID,
		UserID:     r.UserID,
		Rating:     r.Rating,
		ReviewText: r.ReviewText,
		CreatedAt:  formatTime(r.CreatedAt),
		UpdatedAt:  formatTime(r.UpdatedAt),
		IsVerified: r.IsVerified,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES (:id, :book_id, :user_id, :rating, :review_text, :created_at, :updated_at, :is_verified)`, row)
	if isUniqueViolation(err) {
		return Review{}, ErrDuplicate
	}
	if err != nil {
		return Review{}, fmt.Errorf("レビューの挿入に失敗: %w", err)
	}
	return r, nil
}

// update は評価と本文と更新日時を書き換える。
func (s *SQLiteStore) update(ctx context.Context, r Review) (Review, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reviews SET rating = ?, review_text = ?, updated_at = ? WHERE id = ?`,
		r.Rating, r.ReviewText, formatTime(r.UpdatedAt), r.ID)
	if err != nil {
		return Review{}, fmt.Errorf("レビューの更新に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Review{}, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return Review{}, ErrNotFound
	}
	return s.FindByID(ctx, r.ID)
}

// Delete はレビューを削除する。
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("レビューの削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByBookID は書籍のレビューをすべて削除する。
func (s *SQLiteStore) DeleteByBookID(ctx context.Context, bookID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reviews WHERE book_id = ?`, bookID)
	if err != nil {
		return 0, fmt.Errorf("書籍のレビュー削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}

// CountByUserID はユーザーのレビュー件数を返す。
func (s *SQLiteStore) CountByUserID(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM reviews WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("レビュー件数の取得に失敗: %w", err)
	}
	return n, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) selectReviews(ctx context.Context, query string, args ...any) ([]Review, error) {
	var rows []reviewRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗: %w", err)
	}
	reviews := make([]Review, 0, len(rows))
	for _, row := range rows {
		r, err := row.toReview()
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, nil
}

func (s *SQLiteStore) getReview(ctx context.Context, query string, args ...any) (Review, error) {
	var row reviewRow
	err := s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return Review{}, ErrNotFound
	}
	if err != nil {
		return Review{}, fmt.Errorf("レビューの取得に失敗: %w", err)
	}
	return row.toReview()
}

// isUniqueViolation はエラーが一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
