package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSecretPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpc")
	require.NoError(t, os.WriteFile(path, []byte("https://polygon.example/key123\n"), 0o600))

	t.Setenv("POLYGON_RPC_URL", "https://from-env.example")
	t.Setenv("POLYGON_RPC_URL_FILE", path)

	got, err := GetSecret("POLYGON_RPC_URL", "https://default.example")
	require.NoError(t, err)
	assert.Equal(t, "https://polygon.example/key123", got)
}

func TestGetSecretFallbacks(t *testing.T) {
	t.Setenv("DATA_API_BEARER_TOKEN", "")
	got, err := GetSecret("DATA_API_BEARER_TOKEN", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)

	t.Setenv("DATA_API_BEARER_TOKEN", "tok")
	got, err = GetSecret("DATA_API_BEARER_TOKEN", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
}

func TestGetSecretMissingFile(t *testing.T) {
	t.Setenv("DATA_API_API_KEY_FILE", filepath.Join(t.TempDir(), "missing"))

	_, err := GetSecret("DATA_API_API_KEY", "")
	assert.Error(t, err)
	assert.Equal(t, "default", GetOptionalSecret("DATA_API_API_KEY", "default"))
}

func TestMustGetSecretPanics(t *testing.T) {
	t.Setenv("WHALE_TEST_REQUIRED", "")
	assert.Panics(t, func() { MustGetSecret("WHALE_TEST_REQUIRED") })
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://polygon-mainnet.g.alchemy.com/v2/abcdef", "https://polygon-mainnet.g.alchemy.com/***"},
		{"https://polygon-rpc.com", "https://polygon-rpc.com"},
		{"supersecrettoken", "***oken"},
		{"abc", "***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.in), tt.in)
	}
}
