package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMustLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "BASE_URL", "WS_BASE_URL", "ACCESS_TOKEN", "HISTORY_PAGE_SIZE", "TYPING_QUIET_MS", "CACHE_DSN", "CACHE_RETENTION", "TZ_NAME"} {
		t.Setenv(k, "")
	}
	cfg := MustLoad()
	assert.Equal(t, "127.0.0.1:8090", cfg.Addr)
	assert.Equal(t, "http://localhost:8000/", cfg.BaseURL)
	assert.Equal(t, "ws://localhost:8000/", cfg.WSBaseURL)
	assert.Equal(t, 20, cfg.HistoryPageSize)
	assert.Equal(t, 3*time.Second, cfg.TypingQuiet)
	assert.Equal(t, 720*time.Hour, cfg.CacheRetention)
	assert.Equal(t, time.Local, cfg.Location)
}

func TestMustLoadOverrides(t *testing.T) {
	t.Setenv("BASE_URL", "https://chat.example.com")
	t.Setenv("WS_BASE_URL", "")
	t.Setenv("HISTORY_PAGE_SIZE", "50")
	t.Setenv("TYPING_QUIET_MS", "1500")
	t.Setenv("TZ_NAME", "UTC")
	t.Setenv("CACHE_RETENTION", "48h")

	cfg := MustLoad()
	assert.Equal(t, "https://chat.example.com/", cfg.BaseURL)
	assert.Equal(t, "wss://chat.example.com/", cfg.WSBaseURL)
	assert.Equal(t, 50, cfg.HistoryPageSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.TypingQuiet)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.Equal(t, 48*time.Hour, cfg.CacheRetention)
}

func TestMustLoadBadRetentionFallsBack(t *testing.T) {
	t.Setenv("CACHE_RETENTION", "a month")
	assert.Equal(t, 720*time.Hour, MustLoad().CacheRetention)
}
