package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/shouni/gemini-fitting-room/pkg/generator"
)

const (
	defaultPort               = "8080"
	defaultGenerationTimeout  = 2 * time.Minute
	defaultMaxUploadBytes     = 10 << 20
	defaultSessionTTL         = 30 * time.Minute
	defaultCompressionQuality = 85
)

// Config はサーバーの設定です。API キーはセッションごとに受け取るため含みません。
type Config struct {
	// Server
	Port string

	// Gemini
	GeminiModel       string
	GenerationTimeout time.Duration

	// Upload
	MaxUploadBytes     int64
	CompressUploads    bool
	CompressionQuality int

	// Session
	SessionTTL time.Duration

	LogLevel slog.Level
}

// Load は .env（存在すれば）と環境変数から設定を読み込みます。
// files を省略するとカレントディレクトリの .env を読みます。
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug(".env ファイルが見つからないため環境変数のみを使用します", "error", err)
	}

	var errs []error
	cfg := &Config{
		Port:               getEnv("PORT", defaultPort),
		GeminiModel:        getEnv("GEMINI_MODEL", generator.DefaultModel),
		GenerationTimeout:  getDuration("GENERATION_TIMEOUT", defaultGenerationTimeout, &errs),
		MaxUploadBytes:     int64(getInt("MAX_UPLOAD_BYTES", defaultMaxUploadBytes, &errs)),
		CompressUploads:    getBool("COMPRESS_UPLOADS", false, &errs),
		CompressionQuality: getInt("COMPRESSION_QUALITY", defaultCompressionQuality, &errs),
		SessionTTL:         getDuration("SESSION_TTL", defaultSessionTTL, &errs),
		LogLevel:           getLevel("LOG_LEVEL", slog.LevelInfo, &errs),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr は http.Server に渡すアドレスを返します。
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// LogValue は設定内容をログ出力用にまとめます。
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("port", c.Port),
		slog.String("model", c.GeminiModel),
		slog.Duration("generation_timeout", c.GenerationTimeout),
		slog.Int64("max_upload_bytes", c.MaxUploadBytes),
		slog.Bool("compress_uploads", c.CompressUploads),
		slog.Duration("session_ttl", c.SessionTTL),
		slog.String("log_level", c.LogLevel.String()),
	)
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.GeminiModel == "" {
		return fmt.Errorf("GEMINI_MODEL must not be empty")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive, got %s", c.GenerationTimeout)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.CompressionQuality < 1 || c.CompressionQuality > 100 {
		return fmt.Errorf("COMPRESSION_QUALITY must be between 1 and 100, got %d", c.CompressionQuality)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.GenerationTimeout >= c.SessionTTL {
		return fmt.Errorf("GENERATION_TIMEOUT (%s) must be shorter than SESSION_TTL (%s)", c.GenerationTimeout, c.SessionTTL)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getLevel(key string, defaultValue slog.Level, errs *[]error) slog.Level {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return level
}
