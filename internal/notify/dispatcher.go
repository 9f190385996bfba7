// Package notify はレビュー作成イベントをWebhookへ非同期に送信する。
//
// Dispatcher は固定数のワーカーと上限付きキューで送信を行う。
// 送信の失敗やキューあふれはログに記録するだけで、呼び出し元には返さない。
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/review/pkg/event"
	"github.com/nao1215/review/pkg/httpclient"
)

const (
	// DefaultTimeout は1回の送信のデフォルトタイムアウト。
	DefaultTimeout = 5 * time.Second
	// DefaultWorkers はデフォルトのワーカー数。
	DefaultWorkers = 4
	// DefaultQueueSize は送信待ちキューのデフォルト上限。
	DefaultQueueSize = 64
)

// headerEventType はWebhookにイベント種別を伝えるヘッダー名。
const headerEventType = "X-Event-Type"

// Config はDispatcherの設定。ゼロ値の項目はデフォルト値になる。
type Config struct {
	// WebhookURL は送信先のURL。空の場合は送信しない。
	WebhookURL string
	// Timeout は1回の送信のタイムアウト。
	Timeout time.Duration
	// Workers は送信を行うワーカー数。
	Workers int
	// QueueSize は送信待ちキューの上限。
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Dispatcher はレビュー作成イベントをWebhookへ送信するワーカープール。
type Dispatcher struct {
	// client はWebhook送信用のHTTPクライアント。無効な場合はnil。
	client *httpclient.Client
	// timeout は1回の送信のタイムアウト。
	timeout time.Duration
	// queue は送信待ちのイベント。
	queue chan event.ReviewCreatedData
	// logger は構造化ロガー。
	logger *slog.Logger

	// mu はclosedとqueueへの送信を保護する。
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New はDispatcherを生成し、ワーカーを起動する。
// WebhookURLが空の場合は何も送信しない無効なDispatcherを返す。
func New(cfg Config, logger *slog.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		timeout: cfg.Timeout,
		logger:  logger,
	}
	if cfg.WebhookURL == "" {
		return d
	}

	d.client = httpclient.New(cfg.WebhookURL,
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithHeader(headerEventType, string(event.TypeReviewCreated)),
	)
	d.queue = make(chan event.ReviewCreatedData, cfg.QueueSize)
	for range cfg.Workers {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enabled は送信先が設定されているかを返す。
func (d *Dispatcher) Enabled() bool {
	return d.client != nil
}

// Notify はイベントを送信キューに積む。呼び出し元をブロックしない。
// キューが満杯の場合や停止後はイベントを破棄する。
func (d *Dispatcher) Notify(data event.ReviewCreatedData) {
	if !d.Enabled() {
		d.logger.Debug("通知先が未設定のため通知をスキップしました",
			slog.String("review_id", data.ReviewID),
		)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("停止済みのため通知を破棄しました",
			slog.String("review_id", data.ReviewID),
		)
		return
	}

	select {
	case d.queue <- data:
	default:
		d.logger.Warn("通知キューが満杯のため通知を破棄しました",
			slog.String("review_id", data.ReviewID),
			slog.Int("queue_size", cap(d.queue)),
		)
	}
}

// Close は新しい通知の受け付けを止め、キューに残った通知の送信完了を待つ。
// ctxが先に終了した場合はctxのエラーを返す。
func (d *Dispatcher) Close(ctx context.Context) error {
	if !d.Enabled() {
		return nil
	}

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker はキューからイベントを取り出して送信する。
func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for data := range d.queue {
		d.deliver(data)
	}
}

// deliver は1件のイベントをタイムアウト付きで送信する。失敗はログに記録する。
func (d *Dispatcher) deliver(data event.ReviewCreatedData) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	payload, err := event.Encode(data)
	if err != nil {
		d.logger.Error("レビュー作成通知の生成に失敗しました",
			slog.String("review_id", data.ReviewID),
			slog.String("error", err.Error()),
		)
		return
	}

	start := time.Now()
	err = d.client.PostJSON(ctx, "", json.RawMessage(payload), nil)
	if err == nil {
		d.logger.Info("レビュー作成通知を送信しました",
			slog.String("review_id", data.ReviewID),
			slog.Bool("is_first_review", data.IsFirstReview),
			slog.Duration("elapsed", time.Since(start)),
		)
		return
	}

	attrs := []any{
		slog.String("review_id", data.ReviewID),
		slog.String("error", err.Error()),
	}
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		attrs = append(attrs, slog.Int("status", statusErr.StatusCode))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		attrs = append(attrs, slog.Duration("timeout", d.timeout))
	}
	d.logger.Warn("レビュー作成通知の送信に失敗しました", attrs...)
}
