package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Endpoint string   `json:"endpoint"`
	Retries  int      `json:"retries"`
	Tables   []string `json:"tables"`
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	err := os.WriteFile(path, []byte(contents), 0o644)
	require.NoError(t, err)
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// comments are allowed
		endpoint: "https://example.com/exec",
		retries: 3,
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ retries: 5 }`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://example.com/exec", cfg.Endpoint)
	require.Equal(t, 5, cfg.Retries)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWithDefaults(t *testing.T) {
	cfg := testConfig{Retries: 7}
	err := WithDefaults(&cfg, testConfig{
		Endpoint: "https://default.example",
		Retries:  3,
		Tables:   []string{"#a", "#b"},
	})
	require.NoError(t, err)
	require.Equal(t, "https://default.example", cfg.Endpoint)
	require.Equal(t, 7, cfg.Retries)
	require.Equal(t, []string{"#a", "#b"}, cfg.Tables)
}
