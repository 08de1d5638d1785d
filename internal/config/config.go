package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppName string
	Env     string
	Debug   bool

	APIURL string
	WSURL  string
	Token  string

	ReconnectDelay time.Duration
	ReconnectMax   time.Duration
	PingInterval   time.Duration
	RequestTimeout time.Duration
	HistoryPage    int

	Host        string
	Port        int
	CORSOrigins []string
	CachePath   string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppName: getEnv("APP_NAME", "chatclient"),
		Env:     getEnv("APP_ENV", "development"),
		Debug:   getEnvAsBool("DEBUG", true),

		APIURL: strings.TrimRight(getEnv("CHAT_API_URL", "http://localhost:8080/api"), "/"),
		WSURL:  os.Getenv("CHAT_WS_URL"),
		Token:  os.Getenv("CHAT_TOKEN"),

		ReconnectDelay: time.Duration(getEnvAsInt("RECONNECT_DELAY_MS", 3000)) * time.Millisecond,
		ReconnectMax:   time.Duration(getEnvAsInt("RECONNECT_MAX_MS", 0)) * time.Millisecond,
		PingInterval:   time.Duration(getEnvAsInt("PING_INTERVAL_MS", 30000)) * time.Millisecond,
		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		HistoryPage:    getEnvAsInt("HISTORY_PAGE_SIZE", 50),

		Host:      getEnv("HTTP_HOST", "127.0.0.1"),
		Port:      getEnvAsInt("HTTP_PORT", 8090),
		CachePath: getEnv("CACHE_PATH", "chatclient.db"),
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	api, err := url.Parse(cfg.APIURL)
	if err != nil || api.Scheme == "" || api.Host == "" {
		return nil, fmt.Errorf("CHAT_API_URL must be an absolute URL, got %q", cfg.APIURL)
	}
	if cfg.WSURL == "" {
		cfg.WSURL = deriveWSURL(api)
	}
	if cfg.ReconnectDelay <= 0 {
		return nil, fmt.Errorf("RECONNECT_DELAY_MS must be positive")
	}
	if cfg.HistoryPage <= 0 {
		cfg.HistoryPage = 50
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// deriveWSURL maps http(s)://host/... to ws(s)://host/ws.
func deriveWSURL(api *url.URL) string {
	scheme := "ws"
	if api.Scheme == "https" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: api.Host, Path: "/ws"}
	return u.String()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
