package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/review/internal/config"
	"github.com/nao1215/review/internal/notify"
	reviewdb "github.com/nao1215/review/internal/review/db"
	"github.com/nao1215/review/pkg/auth"
	"github.com/nao1215/review/pkg/middleware"
)

const (
	// serviceName はヘルスチェックとログに使うサービス名。
	serviceName = "review-service"
	// serviceVersion はヘルスチェックで返すバージョン。
	serviceVersion = "1.0.0"
	// internalErrorMessage は500エラー時に返す汎用メッセージ。
	internalErrorMessage = "内部サーバーエラーが発生しました"
)

// Server はレビューサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// httpServer はRunで起動するHTTPサーバー。
	httpServer *http.Server
	// service はレビューのビジネスロジック。
	service *Service
	// store はレビューの永続化層。Shutdownで閉じる。
	store reviewdb.Store
	// dispatcher はレビュー作成通知の送信者。Shutdownで停止する。
	dispatcher *notify.Dispatcher
	// logger は構造化ロガー。
	logger *slog.Logger
}

// NewServer は設定に従ってストアと通知送信者を初期化し、レビューサーバーを生成する。
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := notify.New(notify.Config{
		WebhookURL: cfg.Notification.WebhookURL,
		Timeout:    cfg.Notification.Timeout,
		Workers:    cfg.Notification.Workers,
		QueueSize:  cfg.Notification.QueueSize,
	}, logger)
	if !dispatcher.Enabled() {
		logger.Info("NOTIFICATION_WEBHOOK_URLが未設定のためレビュー作成通知は無効です")
	}

	service := NewService(store, logger, WithNotifier(dispatcher))
	s := newServer(service, auth.NewVerifier(cfg.JWTSecret), cfg.CORSAllowedOrigins, logger)
	s.store = store
	s.dispatcher = dispatcher
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// openStore はSTORE_DRIVERに応じたストアを開く。
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (reviewdb.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		store, err := reviewdb.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("MongoDBストアの初期化に失敗: %w", err)
		}
		logger.Info("MongoDBストアを使用します", slog.String("database", cfg.MongoDatabase))
		return store, nil
	default:
		store, err := reviewdb.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("SQLiteストアの初期化に失敗: %w", err)
		}
		logger.Info("SQLiteストアを使用します", slog.String("path", cfg.SQLitePath))
		return store, nil
	}
}

// newServer はルーティングを設定したServerを生成する。
func newServer(service *Service, verifier middleware.TokenVerifier, allowedOrigins []string, logger *slog.Logger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	if gin.Mode() != gin.TestMode {
		router.Use(gin.Logger())
	}
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.Authenticate(verifier, middleware.DefaultPublicRoutes(), logger))

	s := &Server{
		router:  router,
		service: service,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。Shutdownで停止した場合はnilを返す。
func (s *Server) Run() error {
	s.logger.Info("レビューサービスを起動します", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown は処理中のリクエストと通知の完了を待ってからサーバーを停止し、ストアを閉じる。
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTPサーバーの停止に失敗: %w", err))
		}
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("通知送信の停止に失敗: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ストアのクローズに失敗: %w", err))
		}
	}
	return errors.Join(errs...)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// サービス情報
	s.router.GET("/", s.handleRoot())
	// ヘルスチェック
	s.router.GET("/health", s.handleHealth())

	reviews := s.router.Group("/reviews")
	{
		// レビュー一覧取得
		reviews.GET("", s.handleListAll())
		// レビュー作成
		reviews.POST("", s.handleCreate())
		// 書籍のレビュー一覧取得
		reviews.GET("/book/:bookId", s.handleListByBook())
		// 書籍の評価集計
		reviews.GET("/book/:bookId/stats", s.handleBookStats())
		// 評価のみのレビュー作成
		reviews.POST("/book/:bookId/quick", s.handleQuickRate())
		// 書籍のレビュー一括削除（管理者のみ）
		reviews.DELETE("/book/:bookId", s.handleDeleteAllForBook())
		// ユーザーのレビュー一覧取得
		reviews.GET("/user/:userId", s.handleListByUser())
		// レビュー更新
		reviews.PUT("/:reviewId", s.handleUpdate())
		// 評価のみ更新
		reviews.PUT("/:reviewId/rating", s.handleUpdateRating())
		// レビュー削除
		reviews.DELETE("/:reviewId", s.handleDelete())
	}
}

// createReviewRequest はレビュー作成リクエストのJSON構造。
type createReviewRequest struct {
	// BookID はレビュー対象の書籍ID。
	BookID string `json:"bookId" binding:"required"`
	// Rating は評価（1〜5）。
	Rating *int `json:"rating" binding:"required"`
	// ReviewText はレビュー本文。
	ReviewText string `json:"reviewText"`
}

// ratingRequest は評価のみを指定するリクエストのJSON構造。
type ratingRequest struct {
	// Rating は評価（1〜5）。
	Rating *int `json:"rating" binding:"required"`
}

// updateReviewRequest はレビュー更新リクエストのJSON構造。
// 省略したフィールドは変更しない。
type updateReviewRequest struct {
	// Rating は評価（1〜5）。
	Rating *int `json:"rating"`
	// ReviewText はレビュー本文。
	ReviewText *string `json:"reviewText"`
}

// reviewResponse はレビューのJSONレスポンス構造。
type reviewResponse struct {
	ID         string `json:"id"`
	BookID     string `json:"bookId"`
	UserID     string `json:"userId"`
	Rating     int    `json:"rating"`
	ReviewText string `json:"reviewText"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
	IsVerified bool   `json:"isVerified"`
}

// statsResponse は書籍の評価集計のJSONレスポンス構造。
type statsResponse struct {
	BookID        string  `json:"bookId"`
	TotalReviews  int     `json:"totalReviews"`
	AverageRating float64 `json:"averageRating"`
}

// toReviewResponse はレビューをJSONレスポンスに変換する。
func toReviewResponse(r reviewdb.Review) reviewResponse {
	return reviewResponse{
		ID:         r.ID,
		BookID:     r.BookID,
		UserID:     r.UserID,
		Rating:     r.Rating,
		ReviewText: r.ReviewText,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:  r.UpdatedAt.UTC().Format(time.RFC3339Nano),
		IsVerified: r.IsVerified,
	}
}

func toReviewResponses(reviews []reviewdb.Review) []reviewResponse {
	responses := make([]reviewResponse, 0, len(reviews))
	for _, r := range reviews {
		responses = append(responses, toReviewResponse(r))
	}
	return responses
}

// principalOf はリクエストの認証済みPrincipalを返す。未認証の場合はnil。
func principalOf(c *gin.Context) *auth.Principal {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		return nil
	}
	return &p
}

// writeError はエラーをHTTPレスポンスに変換する。
// ドメインエラー以外は詳細をログに記録し、汎用メッセージだけを返す。
func (s *Server) writeError(c *gin.Context, err error) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		middleware.AbortWithError(c, domainErr.HTTPStatus(), domainErr.Message)
		return
	}

	s.logger.Error("リクエストの処理に失敗しました",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.AbortWithError(c, http.StatusInternalServerError, internalErrorMessage)
}

// bindJSON はリクエストボディを読み込み、失敗した場合は400を返してfalseを返す。
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, fmt.Sprintf("リクエストが不正です: %v", err))
		return false
	}
	return true
}

// handleRoot はサービス情報を返すハンドラを返す。
func (s *Server) handleRoot() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":       "Review Service API",
			"documentation": "/docs",
			"health":        "/health",
		})
	}
}

// handleHealth はヘルスチェックのハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   serviceVersion,
		})
	}
}

// handleListAll はすべてのレビューの一覧取得を処理するハンドラを返す。
func (s *Server) handleListAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		reviews, err := s.service.ListAll(c.Request.Context())
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toReviewResponses(reviews))
	}
}

// handleListByBook は書籍のレビュー一覧取得を処理するハンドラを返す。
func (s *Server) handleListByBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		reviews, err := s.service.ListByBook(c.Request.Context(), c.Param("bookId"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toReviewResponses(reviews))
	}
}

// handleListByUser はユーザーのレビュー一覧取得を処理するハンドラを返す。
func (s *Server) handleListByUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		reviews, err := s.service.ListByUser(c.Request.Context(), c.Param("userId"))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toReviewResponses(reviews))
	}
}

// handleBookStats は書籍の評価集計を処理するハンドラを返す。
func (s *Server) handleBookStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		bookID := c.Param("bookId")
		stats, err := s.service.BookStats(c.Request.Context(), bookID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, statsResponse{
			BookID:        bookID,
			TotalReviews:  stats.TotalReviews,
			AverageRating: stats.AverageRating,
		})
	}
}

// handleCreate はレビュー作成を処理するハンドラを返す。
// 作成に成功するとレビュー作成通知を非同期で送信する。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createReviewRequest
		if !bindJSON(c, &req) {
			return
		}

		created, err := s.service.Create(c.Request.Context(), CreateInput{
			BookID:     req.BookID,
			Rating:     *req.Rating,
			ReviewText: req.ReviewText,
		}, principalOf(c))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toReviewResponse(created))
	}
}

// handleQuickRate は評価のみのレビュー作成を処理するハンドラを返す。
func (s *Server) handleQuickRate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ratingRequest
		if !bindJSON(c, &req) {
			return
		}

		created, err := s.service.QuickRate(c.Request.Context(), c.Param("bookId"), *req.Rating, principalOf(c))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toReviewResponse(created))
	}
}

// handleUpdate はレビュー更新を処理するハンドラを返す。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateReviewRequest
		if !bindJSON(c, &req) {
			return
		}

		updated, err := s.service.Update(c.Request.Context(), c.Param("reviewId"), UpdateInput{
			Rating:     req.Rating,
			ReviewText: req.ReviewText,
		}, principalOf(c))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toReviewResponse(updated))
	}
}

// handleUpdateRating は評価のみの更新を処理するハンドラを返す。
func (s *Server) handleUpdateRating() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ratingRequest
		if !bindJSON(c, &req) {
			return
		}

		updated, err := s.service.UpdateRating(c.Request.Context(), c.Param("reviewId"), *req.Rating, principalOf(c))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toReviewResponse(updated))
	}
}

// handleDelete はレビュー削除を処理するハンドラを返す。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.service.Delete(c.Request.Context(), c.Param("reviewId"), principalOf(c)); err != nil {
			s.writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleDeleteAllForBook は書籍のレビュー一括削除を処理するハンドラを返す。
func (s *Server) handleDeleteAllForBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.service.DeleteAllForBook(c.Request.Context(), c.Param("bookId"), principalOf(c)); err != nil {
			s.writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
