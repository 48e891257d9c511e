package relay

import (
	"slices"
	"testing"
)

// TestLoadConfig は環境変数からの設定読み込みを検証する。
// t.Setenvを使うため並列実行しない。
func TestLoadConfig(t *testing.T) {
	t.Run("未設定の項目はデフォルト値になること", func(t *testing.T) {
		for _, key := range []string{"PORT", "DATABASE_PATH", "JWT_SECRET", "ALLOWED_ORIGINS",
			"DEV_TOKEN_ENABLED", "EVENT_RATE_PER_SEC", "EVENT_BURST", "SEND_BUFFER"} {
			t.Setenv(key, "")
		}

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig()でエラーが発生: %v", err)
		}
		if cfg.Port != "8008" || cfg.DatabasePath != "/data/relay.db" || cfg.JWTSecret != "dev-secret-key" {
			t.Errorf("cfg = %+v", cfg)
		}
		if !slices.Equal(cfg.AllowedOrigins, []string{"*"}) || cfg.DevTokenEnabled {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.EventRatePerSec != 20 || cfg.EventBurst != 40 || cfg.SendBuffer != 64 {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("環境変数の値が反映されること", func(t *testing.T) {
		t.Setenv("PORT", "9000")
		t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example,")
		t.Setenv("DEV_TOKEN_ENABLED", "true")
		t.Setenv("EVENT_BURST", "5")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig()でエラーが発生: %v", err)
		}
		if cfg.Port != "9000" || !cfg.DevTokenEnabled || cfg.EventBurst != 5 {
			t.Errorf("cfg = %+v", cfg)
		}
		if !slices.Equal(cfg.AllowedOrigins, []string{"http://a.example", "http://b.example"}) {
			t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
		}
	})

	t.Run("数値でない値はエラーになること", func(t *testing.T) {
		t.Setenv("EVENT_BURST", "many")
		if _, err := LoadConfig(); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}

func TestDSN(t *testing.T) {
	t.Parallel()

	if got := (Config{DatabasePath: ":memory:"}).DSN(); got != ":memory:" {
		t.Errorf("DSN() = %q, want :memory:", got)
	}
	if got := (Config{DatabasePath: "/data/relay.db"}).DSN(); got != "file:/data/relay.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)" {
		t.Errorf("DSN() = %q", got)
	}
}
