// Package config は環境変数からサービスの設定を読み込む。
// カレントディレクトリに .env があれば先に読み込む。既に設定済みの環境変数は上書きしない。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// EnvDevelopment は開発環境を表すAPP_ENVの値。
	EnvDevelopment = "development"

	// StoreSQLite はSQLiteをストアに使うSTORE_DRIVERの値。
	StoreSQLite = "sqlite"
	// StoreMongo はMongoDBをストアに使うSTORE_DRIVERの値。
	StoreMongo = "mongo"

	// devJWTSecret は開発環境でJWT_SECRETが未設定の場合に使う署名鍵。
	devJWTSecret = "dev-secret-key"
)

// defaultCORSOrigins はCORS_ALLOWED_ORIGINSが未設定の場合に許可するオリジン。
var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:3001",
	"http://127.0.0.1:3001",
}

// Config はレビューサービスの設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// JWTSecret はトークン検証に使う共有鍵。
	JWTSecret string
	// AppEnv は実行環境名。
	AppEnv string
	// LogLevel はログレベル（debug, info, warn, error）。
	LogLevel string
	// StoreDriver はストアの種類（sqlite または mongo）。
	StoreDriver string
	// SQLitePath はSQLiteデータベースのファイルパス。
	SQLitePath string
	// MongoURI はMongoDBの接続URI。
	MongoURI string
	// MongoDatabase はMongoDBのデータベース名。
	MongoDatabase string
	// Notification はレビュー作成通知の設定。
	Notification NotificationConfig
	// CORSAllowedOrigins はCORSで許可するオリジン。
	CORSAllowedOrigins []string
}

// NotificationConfig はレビュー作成通知の設定。
type NotificationConfig struct {
	// WebhookURL は通知の送信先。空の場合は通知しない。
	WebhookURL string
	// Timeout は1回の送信のタイムアウト。
	Timeout time.Duration
	// Workers は送信を行うワーカー数。
	Workers int
	// QueueSize は送信待ちキューの上限。
	QueueSize int
}

// IsDevelopment は開発環境かを返す。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// Load は .env と環境変数から設定を読み込む。
// files を指定した場合は .env の代わりにそれらを読み込む。
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("envファイルの読み込みに失敗: %w", err)
	}

	cfg := &Config{
		Port:               getEnvOr("PORT", "8080"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AppEnv:             getEnvOr("APP_ENV", EnvDevelopment),
		LogLevel:           getEnvOr("LOG_LEVEL", "info"),
		StoreDriver:        strings.ToLower(getEnvOr("STORE_DRIVER", StoreSQLite)),
		SQLitePath:         getEnvOr("SQLITE_PATH", "/data/review.db"),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDatabase:      getEnvOr("MONGO_DATABASE", "review"),
		CORSAllowedOrigins: splitList(getEnvOr("CORS_ALLOWED_ORIGINS", strings.Join(defaultCORSOrigins, ","))),
		Notification: NotificationConfig{
			WebhookURL: os.Getenv("NOTIFICATION_WEBHOOK_URL"),
		},
	}

	var err error
	if cfg.Notification.Timeout, err = getDurationOr("NOTIFICATION_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Notification.Workers, err = getIntOr("NOTIFICATION_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.Notification.QueueSize, err = getIntOr("NOTIFICATION_QUEUE_SIZE", 64); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は設定値の整合性を検証する。
func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if !c.IsDevelopment() {
			return errors.New("JWT_SECRETが設定されていません")
		}
		c.JWTSecret = devJWTSecret
	}

	switch c.StoreDriver {
	case StoreSQLite:
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("STORE_DRIVER=mongoの場合はMONGO_URIが必要です")
		}
	default:
		return fmt.Errorf("未対応のSTORE_DRIVERです: %s", c.StoreDriver)
	}

	if c.Notification.Timeout <= 0 {
		return errors.New("NOTIFICATION_TIMEOUTは正の値を指定してください")
	}
	if c.Notification.Workers < 1 {
		return errors.New("NOTIFICATION_WORKERSは1以上を指定してください")
	}
	if c.Notification.QueueSize < 1 {
		return errors.New("NOTIFICATION_QUEUE_SIZEは1以上を指定してください")
	}
	return nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntOr(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%sの値が不正です: %w", key, err)
	}
	return n, nil
}

func getDurationOr(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%sの値が不正です: %w", key, err)
	}
	return d, nil
}

// splitList はカンマ区切りの文字列を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
