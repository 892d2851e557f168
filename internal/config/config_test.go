package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUS_BACKEND", "KAFKA")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("MEDIA_BASE_URL", "https://cdn.example.com/")
	t.Setenv("DEBUG_ROUTES", "yes")

	cfg := Load()

	require.Equal(t, "kafka", cfg.BusBackend)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "https://cdn.example.com", cfg.MediaBaseURL)
	require.False(t, cfg.DebugRoutes)
	require.Equal(t, "postgres", cfg.DBDriver)
}

func TestGetBool(t *testing.T) {
	t.Setenv("FLAG_ON", "true")
	require.True(t, getBool("FLAG_ON", false))
	require.True(t, getBool("FLAG_MISSING", true))
}
