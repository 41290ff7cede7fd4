package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"mfsync/internal/notify"

	"github.com/stretchr/testify/require"
)

func testApp(t *testing.T) *app {
	t.Helper()
	cfg := defaultConfig()
	cfg.Store.File = filepath.Join(t.TempDir(), "state.db")
	a, err := openApp(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestEndpointAddressPrompts(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	var out bytes.Buffer
	prompt := notify.NewInteractive(strings.NewReader("https://script.google.com/macros/s/abc/exec\n\n"), &out)
	address, err := a.endpointAddress(ctx, prompt)
	require.NoError(t, err)
	require.Equal(t, "https://script.google.com/macros/s/abc/exec", address)
	require.Contains(t, out.String(), "URL")

	// the acknowledgement line is still there for the same reader
	ack, err := prompt.Ask(ctx, "Press Enter to continue...")
	require.NoError(t, err)
	require.Empty(t, ack)

	// stored now, no second prompt
	address, err = a.endpointAddress(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "https://script.google.com/macros/s/abc/exec", address)
}

func TestEndpointAddressUnattended(t *testing.T) {
	a := testApp(t)
	_, err := a.endpointAddress(context.Background(), nil)
	require.ErrorContains(t, err, "mfsync endpoint set")

	a.cfg.Endpoint.URL = "https://example.com/exec"
	address, err := a.endpointAddress(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/exec", address)
}

func TestEndpointAddressRejectsGarbage(t *testing.T) {
	a := testApp(t)
	var out bytes.Buffer
	_, err := a.endpointAddress(context.Background(), notify.NewInteractive(strings.NewReader("not a url\n"), &out))
	require.Error(t, err)
}
