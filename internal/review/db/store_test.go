package reviewdb

import (
	"errors"
	"testing"
	"time"
)

// baseTime はテストで使う基準日時。MongoDBの精度に合わせてミリ秒単位にしている。
var baseTime = time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC)

// newReview はテスト用のレビューを生成する。
func newReview(bookID, userID string, rating int, createdAt time.Time) Review {
	return Review{
		BookID:     bookID,
		UserID:     userID,
		Rating:     rating,
		ReviewText: "面白かった",
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

// mustSave はレビューを保存し、失敗した場合はテストを中断する。
func mustSave(t *testing.T, s Store, r Review) Review {
	t.Helper()
	saved, err := s.Save(t.Context(), r)
	if err != nil {
		t.Fatalf("レビューの保存に失敗: %v", err)
	}
	return saved
}

// runStoreTests はStore実装に共通する振る舞いを検証する。
// newStore は呼び出しごとに空のStoreを返すこと。
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("挿入でIDが採番され取得できる", func(t *testing.T) {
		s := newStore(t)
		saved := mustSave(t, s, newReview("book-1", "user-1", 4, baseTime))
		if saved.ID == "" {
			t.Fatal("IDが採番されていない")
		}

		got, err := s.FindByID(t.Context(), saved.ID)
		if err != nil {
			t.Fatalf("FindByIDに失敗: %v", err)
		}
		if got.BookID != "book-1" || got.UserID != "user-1" || got.Rating != 4 {
			t.Errorf("取得結果が不正: %+v", got)
		}
		if got.ReviewText != "面白かった" {
			t.Errorf("ReviewText = %q, want %q", got.ReviewText, "面白かった")
		}
		if !got.CreatedAt.Equal(baseTime) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
		}
		if got.IsVerified {
			t.Error("IsVerifiedはfalseであるべき")
		}
	})

	t.Run("同じ書籍とユーザーの重複挿入はErrDuplicateを返す", func(t *testing.T) {
		s := newStore(t)
		mustSave(t, s, newReview("book-1", "user-1", 4, baseTime))

		_, err := s.Save(t.Context(), newReview("book-1", "user-1", 2, baseTime.Add(time.Second)))
		if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("err = %v, want ErrDuplicate", err)
		}

		reviews, err := s.FindByBookID(t.Context(), "book-1")
		if err != nil {
			t.Fatalf("FindByBookIDに失敗: %v", err)
		}
		if len(reviews) != 1 {
			t.Errorf("レビュー件数 = %d, want 1", len(reviews))
		}
	})

	t.Run("一覧は作成日時の降順で返る", func(t *testing.T) {
		s := newStore(t)
		mustSave(t, s, newReview("book-1", "user-1", 1, baseTime))
		mustSave(t, s, newReview("book-1", "user-2", 2, baseTime.Add(2*time.Hour)))
		mustSave(t, s, newReview("book-1", "user-3", 3, baseTime.Add(time.Hour)))
		mustSave(t, s, newReview("book-2", "user-1", 5, baseTime.Add(3*time.Hour)))

		byBook, err := s.FindByBookID(t.Context(), "book-1")
		if err != nil {
			t.Fatalf("FindByBookIDに失敗: %v", err)
		}
		wantUsers := []string{"user-2", "user-3", "user-1"}
		if len(byBook) != len(wantUsers) {
			t.Fatalf("件数 = %d, want %d", len(byBook), len(wantUsers))
		}
		for i, want := range wantUsers {
			if byBook[i].UserID != want {
				t.Errorf("byBook[%d].UserID = %q, want %q", i, byBook[i].UserID, want)
			}
		}

		byUser, err := s.FindByUserID(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("FindByUserIDに失敗: %v", err)
		}
		if len(byUser) != 2 || byUser[0].BookID != "book-2" || byUser[1].BookID != "book-1" {
			t.Errorf("ユーザー別一覧の順序が不正: %+v", byUser)
		}

		all, err := s.FindAll(t.Context())
		if err != nil {
			t.Fatalf("FindAllに失敗: %v", err)
		}
		if len(all) != 4 || all[0].BookID != "book-2" {
			t.Errorf("全件一覧の順序が不正: %+v", all)
		}
	})

	t.Run("書籍とユーザーの組み合わせで取得できる", func(t *testing.T) {
		s := newStore(t)
		saved := mustSave(t, s, newReview("book-1", "user-1", 4, baseTime))

		got, err := s.FindByBookAndUser(t.Context(), "book-1", "user-1")
		if err != nil {
			t.Fatalf("FindByBookAndUserに失敗: %v", err)
		}
		if got.ID != saved.ID {
			t.Errorf("ID = %q, want %q", got.ID, saved.ID)
		}

		if _, err := s.FindByBookAndUser(t.Context(), "book-1", "user-2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("存在しないIDはErrNotFoundを返す", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.FindByID(t.Context(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("FindByID err = %v, want ErrNotFound", err)
		}
		if err := s.Delete(t.Context(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete err = %v, want ErrNotFound", err)
		}
	})

	t.Run("更新で評価と本文と更新日時だけが変わる", func(t *testing.T) {
		s := newStore(t)
		saved := mustSave(t, s, newReview("book-1", "user-1", 4, baseTime))

		later := baseTime.Add(time.Hour)
		saved.Rating = 2
		saved.ReviewText = "読み返すと微妙"
		saved.UpdatedAt = later
		updated, err := s.Save(t.Context(), saved)
		if err != nil {
			t.Fatalf("更新に失敗: %v", err)
		}
		if updated.Rating != 2 || updated.ReviewText != "読み返すと微妙" {
			t.Errorf("更新結果が不正: %+v", updated)
		}
		if !updated.UpdatedAt.Equal(later) {
			t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, later)
		}
		if !updated.CreatedAt.Equal(baseTime) {
			t.Errorf("CreatedAt = %v, want %v", updated.CreatedAt, baseTime)
		}
	})

	t.Run("削除と件数", func(t *testing.T) {
		s := newStore(t)
		r1 := mustSave(t, s, newReview("book-1", "user-1", 4, baseTime))
		mustSave(t, s, newReview("book-2", "user-1", 3, baseTime))
		mustSave(t, s, newReview("book-1", "user-2", 5, baseTime))

		n, err := s.CountByUserID(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("CountByUserIDに失敗: %v", err)
		}
		if n != 2 {
			t.Errorf("件数 = %d, want 2", n)
		}

		if err := s.Delete(t.Context(), r1.ID); err != nil {
			t.Fatalf("Deleteに失敗: %v", err)
		}
		if _, err := s.FindByID(t.Context(), r1.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("削除後の取得 err = %v, want ErrNotFound", err)
		}

		deleted, err := s.DeleteByBookID(t.Context(), "book-1")
		if err != nil {
			t.Fatalf("DeleteByBookIDに失敗: %v", err)
		}
		if deleted != 1 {
			t.Errorf("削除件数 = %d, want 1", deleted)
		}

		n, err = s.CountByUserID(t.Context(), "user-1")
		if err != nil {
			t.Fatalf("CountByUserIDに失敗: %v", err)
		}
		if n != 1 {
			t.Errorf("削除後の件数 = %d, want 1", n)
		}
	})
}
