// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// セッションストアの種類
const (
	SessionStoreFile     = "file"
	SessionStoreSQLite   = "sqlite"
	SessionStorePostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend API
	APIBaseURL    string        `env:"API_BASE_URL"`
	APITimeout    time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	APIAuthScheme string        `env:"API_AUTH_SCHEME" envDefault:"Bearer"`

	// Server
	ServerHost string `env:"SERVER_HOST" envDefault:"127.0.0.1"`
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// Session store
	SessionStore      string `env:"SESSION_STORE" envDefault:"file"`
	SessionFile       string `env:"SESSION_FILE" envDefault:"./data/session.json"`
	SessionSQLitePath string `env:"SESSION_SQLITE_PATH" envDefault:"./data/session.db"`
	DatabaseURL       string `env:"DATABASE_URL"`
	// 期限切れトークンの確認間隔。0で無効
	SessionExpiryCheckInterval time.Duration `env:"SESSION_EXPIRY_CHECK_INTERVAL" envDefault:"1m"`

	// Auth
	PasswordMinLength int `env:"PASSWORD_MIN_LENGTH" envDefault:"6"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH" envDefault:"10"`

	// Cookie
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"false"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// AuthScheme はAuthorizationヘッダーのスキームを返す。
// "none"の場合はスキームを付けずトークンのみを送るため空文字列を返す。
func (c *Config) AuthScheme() string {
	if strings.EqualFold(strings.TrimSpace(c.APIAuthScheme), "none") {
		return ""
	}
	return strings.TrimSpace(c.APIAuthScheme)
}

// Addr はHTTPサーバーの待ち受けアドレスを返す。
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ServerHost, c.ServerPort)
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStore はセッションストアの操作に必要な設定だけを読み込む。
// statusやlogoutコマンドのようにAPIを呼ばないコマンドで使う。
func LoadStore() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.APIBaseURL) == "" {
		missing = append(missing, "API_BASE_URL")
	}
	if c.SessionStore == SessionStorePostgres && strings.TrimSpace(c.DatabaseURL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL: %q", c.APIBaseURL)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive: %s", c.APITimeout)
	}
	if c.SessionExpiryCheckInterval < 0 {
		return fmt.Errorf("SESSION_EXPIRY_CHECK_INTERVAL must not be negative: %s", c.SessionExpiryCheckInterval)
	}
	if c.PasswordMinLength < 1 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be at least 1: %d", c.PasswordMinLength)
	}
	if c.RateLimitGeneral < 1 || c.RateLimitAuth < 1 {
		return fmt.Errorf("rate limits must be at least 1 request per minute")
	}
	return c.validateStore()
}

func (c *Config) validateStore() error {
	switch c.SessionStore {
	case SessionStoreFile, SessionStoreSQLite:
		return nil
	case SessionStorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("required environment variables are not set: [DATABASE_URL]")
		}
		return nil
	default:
		return fmt.Errorf("SESSION_STORE must be one of file, sqlite, postgres: %q", c.SessionStore)
	}
}
