package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "minio.local:9000")
	t.Setenv("MINIO_BUCKET", "tunes")

	cfg := FromEnv()

	assert.Equal(t, "http://minio.local:9000/tunes", cfg.LibraryBaseURL)
	assert.Equal(t, 20*time.Second, cfg.PreloadThreshold)
	assert.Equal(t, 10*time.Second, cfg.SeekOffset)
	assert.Equal(t, "auto", cfg.TagReaderMode)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LIBRARY_BASE_URL", "https://cdn.example.com/music/")
	t.Setenv("PRELOAD_THRESHOLD", "30")
	t.Setenv("SEEK_OFFSET", "5s")
	t.Setenv("AUDIO_ENABLED", "false")
	t.Setenv("TAG_READER_MODE", "HTTP")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := FromEnv()

	assert.Equal(t, "https://cdn.example.com/music", cfg.LibraryBaseURL)
	assert.Equal(t, 30*time.Second, cfg.PreloadThreshold)
	assert.Equal(t, 5*time.Second, cfg.SeekOffset)
	assert.False(t, cfg.AudioEnabled)
	assert.Equal(t, "http", cfg.TagReaderMode)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestGetEnvDuration_Invalid(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Minute, getEnvDuration("SOME_DURATION", time.Minute))
}
