package relay

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はリレーサーバーの設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// DatabasePath はSQLiteデータベースファイルのパス。":memory:" も指定できる。
	DatabasePath string
	// JWTSecret はトークン検証に使う秘密鍵。
	JWTSecret string
	// AllowedOrigins はCORSとWebSocketで許可するオリジン。"*" はすべて許可する。
	AllowedOrigins []string
	// DevTokenEnabled は開発用トークン発行エンドポイントを有効にするか。
	DevTokenEnabled bool
	// EventRatePerSec は1接続あたりの受信イベントの平均流量。
	EventRatePerSec float64
	// EventBurst は1接続あたりの受信イベントの瞬間的な上限。
	EventBurst int
	// SendBuffer は1接続あたりの送信待ちイベント数の上限。
	SendBuffer int
}

// LoadConfig は環境変数から設定を読み込む。
// カレントディレクトリに.envがあれば先に読み込む。既に設定済みの環境変数は上書きしない。
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf(".envの読み込みに失敗: %v", err)
	}

	cfg := Config{
		Port:           getEnvOr("PORT", "8008"),
		DatabasePath:   getEnvOr("DATABASE_PATH", "/data/relay.db"),
		JWTSecret:      getEnvOr("JWT_SECRET", "dev-secret-key"),
		AllowedOrigins: splitList(getEnvOr("ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.DevTokenEnabled, err = strconv.ParseBool(getEnvOr("DEV_TOKEN_ENABLED", "false")); err != nil {
		return Config{}, fmt.Errorf("DEV_TOKEN_ENABLEDが不正です: %w", err)
	}
	if cfg.EventRatePerSec, err = strconv.ParseFloat(getEnvOr("EVENT_RATE_PER_SEC", "20"), 64); err != nil {
		return Config{}, fmt.Errorf("EVENT_RATE_PER_SECが不正です: %w", err)
	}
	if cfg.EventBurst, err = strconv.Atoi(getEnvOr("EVENT_BURST", "40")); err != nil {
		return Config{}, fmt.Errorf("EVENT_BURSTが不正です: %w", err)
	}
	if cfg.SendBuffer, err = strconv.Atoi(getEnvOr("SEND_BUFFER", "64")); err != nil {
		return Config{}, fmt.Errorf("SEND_BUFFERが不正です: %w", err)
	}
	if cfg.SendBuffer <= 0 {
		return Config{}, fmt.Errorf("SEND_BUFFERは1以上を指定してください: %d", cfg.SendBuffer)
	}
	return cfg, nil
}

// DSN はSQLiteドライバに渡す接続文字列を返す。
func (c Config) DSN() string {
	if c.DatabasePath == ":memory:" {
		return c.DatabasePath
	}
	return "file:" + c.DatabasePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// splitList はカンマ区切りの値を空要素を除いて分割する。
func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
