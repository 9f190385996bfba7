package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	reviewdb "github.com/nao1215/review/internal/review/db"
	"github.com/nao1215/review/pkg/auth"
	"github.com/nao1215/review/pkg/event"
)

const (
	// MinRating は評価の最小値。
	MinRating = 1
	// MaxRating は評価の最大値。
	MaxRating = 5
	// MaxReviewTextLength はレビュー本文の最大文字数。
	MaxReviewTextLength = 1000
)

// Notifier はレビュー作成の通知先。
// Notify は呼び出し元をブロックしてはならず、失敗も返さない。
type Notifier interface {
	Notify(data event.ReviewCreatedData)
}

// nopNotifier は何もしないNotifier。
type nopNotifier struct{}

func (nopNotifier) Notify(event.ReviewCreatedData) {}

// CreateInput はレビュー作成の入力。
type CreateInput struct {
	// BookID はレビュー対象の書籍ID。
	BookID string
	// Rating は評価（1〜5）。
	Rating int
	// ReviewText はレビュー本文。省略可。
	ReviewText string
}

// UpdateInput はレビュー更新の入力。
// nilのフィールドは変更せず、既存の値を保持する。
type UpdateInput struct {
	Rating     *int
	ReviewText *string
}

// Stats は書籍ごとの評価集計。
type Stats struct {
	// TotalReviews はレビュー件数。
	TotalReviews int
	// AverageRating は評価の平均値。小数第2位で四捨五入する。
	AverageRating float64
}

// Service はレビューのビジネスルールを適用する。
type Service struct {
	// store はレビューの永続化層。
	store reviewdb.Store
	// notifier はレビュー作成時の通知先。
	notifier Notifier
	// logger は構造化ロガー。
	logger *slog.Logger
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// Option はServiceの設定を変更する。
type Option func(*Service)

// WithNotifier はレビュー作成時の通知先を設定する。
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithClock は現在時刻の取得方法を設定する。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService は新しいServiceを生成する。
func NewService(store reviewdb.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: nopNotifier{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListAll はすべてのレビューを新しい順に返す。
func (s *Service) ListAll(ctx context.Context) ([]reviewdb.Review, error) {
	reviews, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗: %w", err)
	}
	return reviews, nil
}

// ListByBook は書籍のレビューを新しい順に返す。
func (s *Service) ListByBook(ctx context.Context, bookID string) ([]reviewdb.Review, error) {
	reviews, err := s.store.FindByBookID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("書籍のレビュー一覧の取得に失敗: %w", err)
	}
	return reviews, nil
}

// ListByUser はユーザーのレビューを新しい順に返す。
func (s *Service) ListByUser(ctx context.Context, userID string) ([]reviewdb.Review, error) {
	reviews, err := s.store.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーのレビュー一覧の取得に失敗: %w", err)
	}
	return reviews, nil
}

// Create はレビューを作成し、作成を通知する。
// 通知は非同期で行われ、その成否は戻り値に影響しない。
func (s *Service) Create(ctx context.Context, in CreateInput, p *auth.Principal) (reviewdb.Review, error) {
	if err := validateBookID(in.BookID); err != nil {
		return reviewdb.Review{}, err
	}
	if err := validateRating(in.Rating); err != nil {
		return reviewdb.Review{}, err
	}
	if err := validateReviewText(in.ReviewText); err != nil {
		return reviewdb.Review{}, err
	}
	if p == nil {
		return reviewdb.Review{}, ErrUnauthenticated
	}

	// 挿入前の件数で初回レビューかを判定する
	prior, err := s.store.CountByUserID(ctx, p.Subject)
	if err != nil {
		return reviewdb.Review{}, fmt.Errorf("レビュー件数の取得に失敗: %w", err)
	}

	created, err := s.insert(ctx, in.BookID, in.Rating, in.ReviewText, p.Subject)
	if err != nil {
		return reviewdb.Review{}, err
	}

	s.notifier.Notify(event.ReviewCreatedData{
		UserID:        created.UserID,
		BookID:        created.BookID,
		ReviewID:      created.ID,
		Rating:        created.Rating,
		IsFirstReview: prior == 0,
	})
	s.logger.Info("レビューを作成しました",
		slog.String("review_id", created.ID),
		slog.String("book_id", created.BookID),
		slog.String("user_id", created.UserID),
	)

	return created, nil
}

// QuickRate は本文なしの評価のみのレビューを作成する。作成の通知は行わない。
func (s *Service) QuickRate(ctx context.Context, bookID string, rating int, p *auth.Principal) (reviewdb.Review, error) {
	if err := validateBookID(bookID); err != nil {
		return reviewdb.Review{}, err
	}
	if err := validateRating(rating); err != nil {
		return reviewdb.Review{}, err
	}
	if p == nil {
		return reviewdb.Review{}, ErrUnauthenticated
	}
	return s.insert(ctx, bookID, rating, "", p.Subject)
}

// insert は一意性を確認したうえでレビューを挿入する。
// 確認と挿入の間に競合した場合もストアの一意制約によりErrConflictになる。
func (s *Service) insert(ctx context.Context, bookID string, rating int, text, userID string) (reviewdb.Review, error) {
	_, err := s.store.FindByBookAndUser(ctx, bookID, userID)
	if err == nil {
		return reviewdb.Review{}, ErrConflict
	}
	if !errors.Is(err, reviewdb.ErrNotFound) {
		return reviewdb.Review{}, fmt.Errorf("既存レビューの確認に失敗: %w", err)
	}

	now := s.now().UTC()
	created, err := s.store.Save(ctx, reviewdb.Review{
		BookID:     bookID,
		UserID:     userID,
		Rating:     rating,
		ReviewText: text,
		CreatedAt:  now,
		UpdatedAt:  now,
		IsVerified: false,
	})
	if errors.Is(err, reviewdb.ErrDuplicate) {
		return reviewdb.Review{}, ErrConflict
	}
	if err != nil {
		return reviewdb.Review{}, fmt.Errorf("レビューの保存に失敗: %w", err)
	}
	return created, nil
}

// Update は指定されたフィールドだけを更新する。作成者本人のみ実行できる。
func (s *Service) Update(ctx context.Context, reviewID string, in UpdateInput, p *auth.Principal) (reviewdb.Review, error) {
	if p == nil {
		return reviewdb.Review{}, ErrUnauthenticated
	}
	if in.Rating != nil {
		if err := validateRating(*in.Rating); err != nil {
			return reviewdb.Review{}, err
		}
	}
	if in.ReviewText != nil {
		if err := validateReviewText(*in.ReviewText); err != nil {
			return reviewdb.Review{}, err
		}
	}

	r, err := s.findOwned(ctx, reviewID, p)
	if err != nil {
		return reviewdb.Review{}, err
	}

	if in.Rating != nil {
		r.Rating = *in.Rating
	}
	if in.ReviewText != nil {
		r.ReviewText = *in.ReviewText
	}
	return s.save(ctx, r)
}

// UpdateRating は評価だけを更新する。作成者本人のみ実行できる。
func (s *Service) UpdateRating(ctx context.Context, reviewID string, rating int, p *auth.Principal) (reviewdb.Review, error) {
	return s.Update(ctx, reviewID, UpdateInput{Rating: &rating}, p)
}

// Delete はレビューを削除する。作成者本人または管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, reviewID string, p *auth.Principal) error {
	if p == nil {
		return ErrUnauthenticated
	}

	r, err := s.find(ctx, reviewID)
	if err != nil {
		return err
	}
	if r.UserID != p.Subject && !p.IsAdmin() {
		return forbidden("自分のレビューのみ削除できます")
	}

	err = s.store.Delete(ctx, r.ID)
	if errors.Is(err, reviewdb.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("レビューの削除に失敗: %w", err)
	}

	s.logger.Info("レビューを削除しました",
		slog.String("review_id", r.ID),
		slog.String("deleted_by", p.Subject),
	)
	return nil
}

// DeleteAllForBook は書籍のレビューをすべて削除する。管理者のみ実行できる。
func (s *Service) DeleteAllForBook(ctx context.Context, bookID string, p *auth.Principal) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if !p.IsAdmin() {
		return forbidden("書籍のレビューを一括削除できるのは管理者のみです")
	}

	n, err := s.store.DeleteByBookID(ctx, bookID)
	if err != nil {
		return fmt.Errorf("書籍のレビュー削除に失敗: %w", err)
	}

	s.logger.Info("書籍のレビューを一括削除しました",
		slog.String("book_id", bookID),
		slog.Int64("deleted", n),
		slog.String("deleted_by", p.Subject),
	)
	return nil
}

// BookStats は書籍の評価件数と平均評価を返す。
func (s *Service) BookStats(ctx context.Context, bookID string) (Stats, error) {
	reviews, err := s.store.FindByBookID(ctx, bookID)
	if err != nil {
		return Stats{}, fmt.Errorf("書籍のレビュー一覧の取得に失敗: %w", err)
	}
	if len(reviews) == 0 {
		return Stats{}, nil
	}

	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	avg := float64(sum) / float64(len(reviews))

	return Stats{
		TotalReviews:  len(reviews),
		AverageRating: roundHalfUp2(avg),
	}, nil
}

// roundHalfUp2 は小数第3位を四捨五入して小数第2位までにする。
func roundHalfUp2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

// find はIDでレビューを取得し、存在しない場合はErrNotFoundを返す。
func (s *Service) find(ctx context.Context, reviewID string) (reviewdb.Review, error) {
	r, err := s.store.FindByID(ctx, reviewID)
	if errors.Is(err, reviewdb.ErrNotFound) {
		return reviewdb.Review{}, ErrNotFound
	}
	if err != nil {
		return reviewdb.Review{}, fmt.Errorf("レビューの取得に失敗: %w", err)
	}
	return r, nil
}

// findOwned はレビューを取得し、作成者本人であることを確認する。
// 管理者であっても他人のレビューは更新できない。
func (s *Service) findOwned(ctx context.Context, reviewID string, p *auth.Principal) (reviewdb.Review, error) {
	r, err := s.find(ctx, reviewID)
	if err != nil {
		return reviewdb.Review{}, err
	}
	if r.UserID != p.Subject {
		return reviewdb.Review{}, forbidden("自分のレビューのみ更新できます")
	}
	return r, nil
}

// save は更新日時を打ち直して保存する。
func (s *Service) save(ctx context.Context, r reviewdb.Review) (reviewdb.Review, error) {
	r.UpdatedAt = s.now().UTC()
	updated, err := s.store.Save(ctx, r)
	if errors.Is(err, reviewdb.ErrNotFound) {
		return reviewdb.Review{}, ErrNotFound
	}
	if err != nil {
		return reviewdb.Review{}, fmt.Errorf("レビューの更新に失敗: %w", err)
	}
	return updated, nil
}

func validateBookID(bookID string) error {
	if strings.TrimSpace(bookID) == "" {
		return validationf("書籍IDは必須です")
	}
	return nil
}

func validateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return validationf("評価は%dから%dの範囲で指定してください", MinRating, MaxRating)
	}
	return nil
}

func validateReviewText(text string) error {
	if utf8.RuneCountInString(text) > MaxReviewTextLength {
		return validationf("レビュー本文は%d文字以内で入力してください", MaxReviewTextLength)
	}
	return nil
}
