package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.GetRedisAddr())
	assert.Equal(t, 10, cfg.MaxImages)
	assert.EqualValues(t, 5*1024*1024, cfg.MaxImageBytes)
	assert.EqualValues(t, 50*1024*1024, cfg.MaxVideoBytes)
	assert.Equal(t, 500, cfg.PromptLimit)
	assert.Equal(t, 400, cfg.PromptWarnAt)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.RedisUseTLS)
	assert.Empty(t, cfg.StorageBucket)
	assert.Same(t, cfg, GetConfig())
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_IMAGES", "4")
	t.Setenv("PROMPT_LIMIT", "200")
	t.Setenv("PROMPT_WARN_AT", "150")
	t.Setenv("REDIS_USE_TLS", "true")
	t.Setenv("PORT", "9090")
	t.Setenv("SUPABASE_STORAGE_BUCKET", "videos")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxImages)
	assert.Equal(t, 200, cfg.PromptLimit)
	assert.Equal(t, 150, cfg.PromptWarnAt)
	assert.True(t, cfg.RedisUseTLS)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "videos", cfg.StorageBucket)
}

func TestLoadConfig_InvalidIntFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_IMAGES", "ten")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxImages)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing supabase url", env: map[string]string{"SUPABASE_URL": ""}, wantErr: "SUPABASE_URL is required"},
		{name: "missing service key", env: map[string]string{"SUPABASE_SERVICE_KEY": ""}, wantErr: "SUPABASE_SERVICE_KEY is required"},
		{name: "non-positive max images", env: map[string]string{"MAX_IMAGES": "0"}, wantErr: "MAX_IMAGES must be positive"},
		{name: "warn above limit", env: map[string]string{"PROMPT_WARN_AT": "600"}, wantErr: "PROMPT_WARN_AT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
