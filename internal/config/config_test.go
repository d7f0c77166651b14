package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", c.Addr)
	require.Equal(t, 10*time.Second, c.RejoinGrace)
	require.Equal(t, 3*time.Second, c.WriteTimeout)
	require.Equal(t, "info", c.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("REJOIN_GRACE", "0s")
	t.Setenv("ALLOWED_ORIGINS", "localhost:5173,app.example.com")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9999", c.Addr)
	require.Zero(t, c.RejoinGrace)
	require.Equal(t, []string{"localhost:5173", "app.example.com"}, c.AllowedOrigins)
}
