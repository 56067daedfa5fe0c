package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr            string
	BaseURL         string
	WSBaseURL       string
	AccessToken     string
	HistoryPageSize int
	TypingQuiet     time.Duration
	CacheDSN        string
	CacheRetention  time.Duration
	Location        *time.Location
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return def
}

func withSlash(s string) string {
	if s != "" && !strings.HasSuffix(s, "/") {
		return s + "/"
	}
	return s
}

func MustLoad() Config {
	pageSize, _ := strconv.Atoi(getenv("HISTORY_PAGE_SIZE", "20"))
	quietMs, _ := strconv.Atoi(getenv("TYPING_QUIET_MS", "3000"))

	// Go duration syntax; "0" keeps cached messages forever.
	retention, err := time.ParseDuration(getenv("CACHE_RETENTION", "720h"))
	if err != nil {
		retention = 720 * time.Hour
	}

	loc := time.Local
	if name := getenv("TZ_NAME", ""); name != "" {
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		}
	}

	baseURL := withSlash(getenv("BASE_URL", "http://localhost:8000/"))
	wsBase := getenv("WS_BASE_URL", "")
	if wsBase == "" {
		wsBase = strings.Replace(strings.Replace(baseURL, "https://", "wss://", 1), "http://", "ws://", 1)
	}

	cfg := Config{
		Addr:            getenv("HTTP_ADDR", "127.0.0.1:8090"),
		BaseURL:         baseURL,
		WSBaseURL:       withSlash(wsBase),
		AccessToken:     getenv("ACCESS_TOKEN", ""),
		HistoryPageSize: pageSize,
		TypingQuiet:     time.Duration(quietMs) * time.Millisecond,
		CacheDSN:        getenv("CACHE_DSN", ""),
		CacheRetention:  retention,
		Location:        loc,
	}
	return cfg
}
