package secrets

import (
	"fmt"
	"os"
	"strings"
)

// GetSecret resolves a secret such as POLYGON_RPC_URL (which may embed a
// provider key) or DATA_API_BEARER_TOKEN.
// KEY_FILE pointing at a mounted file (e.g. /run/secrets/polygon_rpc_url)
// takes precedence over KEY itself.
func GetSecret(envKey string, defaultValue string) (string, error) {
	if filePath := os.Getenv(envKey + "_FILE"); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read secret file %s: %w", filePath, err)
		}
		value := strings.TrimSpace(string(data))
		if value == "" {
			return "", fmt.Errorf("secret file %s is empty", filePath)
		}
		return value, nil
	}

	if value := os.Getenv(envKey); value != "" {
		return value, nil
	}

	return defaultValue, nil
}

// MustGetSecret resolves a required secret and panics when it is missing
func MustGetSecret(envKey string) string {
	value, err := GetSecret(envKey, "")
	if err != nil {
		panic(fmt.Sprintf("failed to load secret %s: %v", envKey, err))
	}
	if value == "" {
		panic(fmt.Sprintf("secret %s is required but not set", envKey))
	}
	return value
}

// GetOptionalSecret resolves a secret, falling back to defaultValue on any error
func GetOptionalSecret(envKey string, defaultValue string) string {
	value, err := GetSecret(envKey, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}

// Redact masks all but the scheme and host of an RPC URL or the last four
// characters of a token, for logging
func Redact(secret string) string {
	if i := strings.Index(secret, "://"); i >= 0 {
		rest := secret[i+3:]
		if j := strings.IndexAny(rest, "/?"); j >= 0 {
			return secret[:i+3] + rest[:j] + "/***"
		}
		return secret
	}
	if len(secret) <= 4 {
		return "***"
	}
	return "***" + secret[len(secret)-4:]
}
