package review

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	reviewdb "github.com/nao1215/review/internal/review/db"
	"github.com/nao1215/review/pkg/auth"
	"github.com/nao1215/review/pkg/event"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// discardLogger は出力を捨てるロガーを返す。
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStore はストアへの呼び出し回数を数えるStore。
type countingStore struct {
	reviewdb.Store
	calls atomic.Int64
	saves atomic.Int64
}

func (s *countingStore) FindAll(ctx context.Context) ([]reviewdb.Review, error) {
	s.calls.Add(1)
	return s.Store.FindAll(ctx)
}

func (s *countingStore) FindByBookID(ctx context.Context, bookID string) ([]reviewdb.Review, error) {
	s.calls.Add(1)
	return s.Store.FindByBookID(ctx, bookID)
}

func (s *countingStore) FindByUserID(ctx context.Context, userID string) ([]reviewdb.Review, error) {
	s.calls.Add(1)
	return s.Store.FindByUserID(ctx, userID)
}

func (s *countingStore) FindByBookAndUser(ctx context.Context, bookID, userID string) (reviewdb.Review, error) {
	s.calls.Add(1)
	return s.Store.FindByBookAndUser(ctx, bookID, userID)
}

func (s *countingStore) FindByID(ctx context.Context, id string) (reviewdb.Review, error) {
	s.calls.Add(1)
	return s.Store.FindByID(ctx, id)
}

func (s *countingStore) Save(ctx context.Context, r reviewdb.Review) (reviewdb.Review, error) {
	s.calls.Add(1)
	s.saves.Add(1)
	return s.Store.Save(ctx, r)
}

func (s *countingStore) Delete(ctx context.Context, id string) error {
	s.calls.Add(1)
	return s.Store.Delete(ctx, id)
}

func (s *countingStore) DeleteByBookID(ctx context.Context, bookID string) (int64, error) {
	s.calls.Add(1)
	return s.Store.DeleteByBookID(ctx, bookID)
}

func (s *countingStore) CountByUserID(ctx context.Context, userID string) (int64, error) {
	s.calls.Add(1)
	return s.Store.CountByUserID(ctx, userID)
}

// recordingNotifier は受け取った通知を記録するNotifier。
type recordingNotifier struct {
	mu     sync.Mutex
	events []event.ReviewCreatedData
}

func (n *recordingNotifier) Notify(data event.ReviewCreatedData) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, data)
}

func (n *recordingNotifier) Events() []event.ReviewCreatedData {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]event.ReviewCreatedData(nil), n.events...)
}

// fakeClock は呼び出しごとに1秒進む時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// testEnv はServiceのテストに使う依存一式。
type testEnv struct {
	service  *Service
	store    *countingStore
	notifier *recordingNotifier
	clock    *fakeClock
}

// newTestEnv はインメモリSQLiteを使ったServiceを生成する。
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sqliteStore, err := reviewdb.OpenSQLite(t.Context(), ":memory:", discardLogger())
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	store := &countingStore{Store: sqliteStore}
	notifier := &recordingNotifier{}
	clock := newFakeClock()
	return &testEnv{
		service:  NewService(store, discardLogger(), WithNotifier(notifier), WithClock(clock.Now)),
		store:    store,
		notifier: notifier,
		clock:    clock,
	}
}

// user は一般ユーザーのPrincipalを返す。
func user(id string) *auth.Principal {
	return &auth.Principal{Subject: id, Role: "user", Email: id + "@example.com"}
}

// admin は管理者のPrincipalを返す。
func admin(id string) *auth.Principal {
	return &auth.Principal{Subject: id, Role: auth.RoleAdmin, Email: id + "@example.com"}
}

// mustCreate はレビューを作成し、失敗した場合はテストを中断する。
func mustCreate(t *testing.T, s *Service, bookID string, rating int, p *auth.Principal) reviewdb.Review {
	t.Helper()
	r, err := s.Create(t.Context(), CreateInput{BookID: bookID, Rating: rating, ReviewText: "良い本"}, p)
	if err != nil {
		t.Fatalf("レビューの作成に失敗: %v", err)
	}
	return r
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
