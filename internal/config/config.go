package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	TelegramToken string
	GeminiAPIKey  string

	LogLevel string
	Debug    bool

	WebAddr      string
	PreferIPv4   bool
	MDNSEnabled  bool
	MDNSInstance string

	DatabasePath string
	CatalogFile  string

	GenerationBackend string
	ImageModel        string
	GeminiBaseURL     string
	GeminiAPIVersion  string

	AlbumDebounce      time.Duration
	MaxConcurrent      int
	MaxHistoryEntries  int
	VariationCount     int
	RequestsPerMinute  int
	MaxUploadBytes     int64
	CompressAboveBytes int
	RequestTimeout     time.Duration
	HTTPTimeout        time.Duration
}

// Load reads the environment. The Gemini key is always required; the
// Telegram token only when requireTelegram is set.
func Load(requireTelegram bool) (Config, error) {
	cfg := Config{
		LogLevel:           strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:              getEnvBool("DEBUG", false),
		WebAddr:            strings.TrimSpace(getEnv("WEB_ADDR", ":8080")),
		PreferIPv4:         getEnvBool("PREFER_IPV4", true),
		MDNSEnabled:        getEnvBool("MDNS_ADVERTISE", false),
		MDNSInstance:       strings.TrimSpace(getEnv("MDNS_INSTANCE", "arch-render-studio")),
		DatabasePath:       strings.TrimSpace(getEnv("DATABASE_PATH", "data/studio.db")),
		CatalogFile:        strings.TrimSpace(os.Getenv("CATALOG_FILE")),
		GenerationBackend:  strings.ToLower(strings.TrimSpace(getEnv("GENERATION_BACKEND", "rest"))),
		ImageModel:         strings.TrimSpace(getEnv("IMAGE_MODEL", "gemini-2.5-flash-image")),
		GeminiBaseURL:      strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion:   strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		AlbumDebounce:      time.Duration(getEnvInt("ALBUM_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:      getEnvInt("MAX_CONCURRENT", 4),
		MaxHistoryEntries:  getEnvInt("MAX_HISTORY_ENTRIES", 50),
		VariationCount:     getEnvInt("VARIATION_COUNT", 3),
		RequestsPerMinute:  getEnvInt("REQUESTS_PER_MINUTE", 30),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 25)) << 20,
		CompressAboveBytes: getEnvInt("COMPRESS_ABOVE_KB", 4096) << 10,
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 240)) * time.Second,
		HTTPTimeout:        time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))

	switch {
	case requireTelegram && cfg.TelegramToken == "":
		return Config{}, errors.New("TELEGRAM_BOT_TOKEN is required")
	case cfg.GeminiAPIKey == "":
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}

	switch cfg.GenerationBackend {
	case "rest", "sdk":
	default:
		return Config{}, errors.New("GENERATION_BACKEND must be rest or sdk")
	}

	if cfg.WebAddr == "" {
		cfg.WebAddr = ":8080"
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxHistoryEntries < 1 {
		cfg.MaxHistoryEntries = 1
	}
	if cfg.VariationCount < 1 {
		cfg.VariationCount = 1
	}
	if cfg.VariationCount > 4 {
		cfg.VariationCount = 4
	}
	if cfg.RequestsPerMinute < 0 {
		cfg.RequestsPerMinute = 0
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 240 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
