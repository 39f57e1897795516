package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("RSI_TEST_VALUE", "  trade-data ")
	assert.Equal(t, "trade-data", GetEnv("RSI_TEST_VALUE", "x"))

	t.Setenv("RSI_TEST_VALUE", "   ")
	assert.Equal(t, "x", GetEnv("RSI_TEST_VALUE", "x"))
	assert.Equal(t, "fallback", GetEnv("RSI_TEST_UNSET_VALUE", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 14},
		{"21", 21},
		{"0", 14},
		{"-3", 14},
		{"abc", 14},
		{"7.5", 14},
	}
	for _, tc := range cases {
		t.Setenv("RSI_TEST_INT", tc.raw)
		assert.Equal(t, tc.want, GetEnvInt("RSI_TEST_INT", 14), "raw=%q", tc.raw)
	}
}

func TestGetEnvMillis(t *testing.T) {
	t.Setenv("RSI_TEST_MS", "250")
	assert.Equal(t, 250*time.Millisecond, GetEnvMillis("RSI_TEST_MS", 5*time.Second))

	t.Setenv("RSI_TEST_MS", "")
	assert.Equal(t, 5*time.Second, GetEnvMillis("RSI_TEST_MS", 5*time.Second))
}

func TestLoadDotenv_EnvFileDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("RSI_DOTENV_A=from-file\nRSI_DOTENV_B=from-file\n"), 0o600))

	t.Setenv("ENV_FILE", path)
	t.Setenv("RSI_DOTENV_A", "from-os")
	t.Setenv("RSI_DOTENV_B", "")
	os.Unsetenv("RSI_DOTENV_B")
	t.Cleanup(func() { os.Unsetenv("RSI_DOTENV_B") })

	loadDotenv()

	assert.Equal(t, "from-os", os.Getenv("RSI_DOTENV_A"))
	assert.Equal(t, "from-file", os.Getenv("RSI_DOTENV_B"))
}
