package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config - 서버 전체 환경변수
type Config struct {
	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL        string
	SupabaseServiceKey string
	StorageBucket      string // 비어 있으면 생성 비디오 보관 안 함

	// Video generation API
	VideoAPIURL string
	VideoAPIKey string

	// Upload limits
	MaxImages     int
	MaxImageBytes int64
	MaxVideoBytes int64
	PromptLimit   int
	PromptWarnAt  int

	// Server
	Port       string
	PreviewDir string
}

var globalConfig *Config

// LoadConfig - .env 와 환경변수에서 설정 로드
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	cfg := &Config{
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getEnvBool("REDIS_USE_TLS", false),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		StorageBucket:      getEnv("SUPABASE_STORAGE_BUCKET", ""),

		VideoAPIURL: getEnv("VIDEO_API_URL", "https://api.flowai.dev/v1/videos"),
		VideoAPIKey: getEnv("VIDEO_API_KEY", ""),

		MaxImages:     getEnvInt("MAX_IMAGES", 10),
		MaxImageBytes: int64(getEnvInt("MAX_IMAGE_BYTES", 5*1024*1024)),
		MaxVideoBytes: int64(getEnvInt("MAX_VIDEO_BYTES", 50*1024*1024)),
		PromptLimit:   getEnvInt("PROMPT_LIMIT", 500),
		PromptWarnAt:  getEnvInt("PROMPT_WARN_AT", 400),

		Port:       getEnv("PORT", "8080"),
		PreviewDir: getEnv("PREVIEW_DIR", filepath.Join(os.TempDir(), "flowai-previews")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Redis: %s (TLS: %v)", cfg.GetRedisAddr(), cfg.RedisUseTLS)
	log.Printf("   Supabase: %s", cfg.SupabaseURL)
	log.Printf("   Video API: %s", cfg.VideoAPIURL)
	log.Printf("   Limits: %d images, %d/%d bytes, prompt %d", cfg.MaxImages, cfg.MaxImageBytes, cfg.MaxVideoBytes, cfg.PromptLimit)

	return cfg, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

func (c *Config) validate() error {
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.MaxImages <= 0 {
		return fmt.Errorf("MAX_IMAGES must be positive, got %d", c.MaxImages)
	}
	if c.PromptWarnAt >= c.PromptLimit {
		return fmt.Errorf("PROMPT_WARN_AT (%d) must be below PROMPT_LIMIT (%d)", c.PromptWarnAt, c.PromptLimit)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
