// Package config は環境変数からstageplan webの設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 必須の環境変数。
const (
	EnvIdentityURL     = "IDENTITY_URL"
	EnvIdentityAnonKey = "IDENTITY_ANON_KEY"
)

// defaultDatabaseURL はDATABASE_URL未指定時のSQLiteデータベース。
const defaultDatabaseURL = "file:/data/stageplan.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// Config はサーバーの実行時設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// IdentityURL はIDサービスのベースURL。
	IdentityURL string
	// IdentityAnonKey はIDサービスの公開APIキー。
	IdentityAnonKey string
	// IdentityTimeout はセッション検証1回あたりのIDサービス呼び出しの上限時間。
	IdentityTimeout time.Duration
	// DatabaseURL はプロジェクトストアの接続先。postgres:// で始まる場合はPostgreSQLを使う。
	DatabaseURL string
	// KafkaBrokers はドメインイベントの送信先。空の場合は送信しない。
	KafkaBrokers []string
	// ProjectEventsTopic はプロジェクト関連イベントのトピック名。
	ProjectEventsTopic string
	// FrontendURL はCORSで許可するオリジン。
	FrontendURL string
	// CookieSecure はセッションCookieにSecure属性を付けるかどうか。
	CookieSecure bool
	// StaticDir は静的ファイルの配信元ディレクトリ。空の場合は配信しない。
	StaticDir string
}

// MissingError は必須の環境変数が設定されていないことを表す。
// 起動時の致命的エラーであり、リクエスト単位で回復するものではない。
type MissingError struct {
	// Keys は未設定の環境変数名。
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("必須の環境変数が設定されていません: %s", strings.Join(e.Keys, ", "))
}

// Load は環境変数から設定を読み込む。
// IDENTITY_URL と IDENTITY_ANON_KEY のいずれかが未設定の場合は*MissingErrorを返す。
func Load() (Config, error) {
	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		IdentityURL:        strings.TrimSpace(os.Getenv(EnvIdentityURL)),
		IdentityAnonKey:    strings.TrimSpace(os.Getenv(EnvIdentityAnonKey)),
		IdentityTimeout:    getDurationEnv("IDENTITY_TIMEOUT", 5*time.Second),
		DatabaseURL:        getEnv("DATABASE_URL", defaultDatabaseURL),
		KafkaBrokers:       splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		ProjectEventsTopic: getEnv("PROJECT_EVENTS_TOPIC", "stageplan.project-events"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
		CookieSecure:       getBoolEnv("COOKIE_SECURE", true),
		StaticDir:          os.Getenv("STATIC_DIR"),
	}

	var missing []string
	if cfg.IdentityURL == "" {
		missing = append(missing, EnvIdentityURL)
	}
	if cfg.IdentityAnonKey == "" {
		missing = append(missing, EnvIdentityAnonKey)
	}
	if len(missing) > 0 {
		return Config{}, &MissingError{Keys: missing}
	}
	return cfg, nil
}

// UsesPostgres はプロジェクトストアにPostgreSQLを使うかどうかを返す。
func (c Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
