package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mfsync/internal/period"
	"mfsync/internal/scrapers/moneyforward/mftest"
	"mfsync/internal/session"

	"github.com/stretchr/testify/require"
)

func TestPreviewSavedPage(t *testing.T) {
	a := testApp(t)
	a.cfg.Sync.LocateTimeoutMs = 50
	a.cfg.Sync.PollIntervalMs = 1

	march := period.New(2024, time.March)
	html := mftest.Page(march, mftest.PageOptions{},
		mftest.Row{Date: "03/15(金)", Description: "スーパー", Amount: "-1,250円", LargeCategory: "食費", MiddleCategory: "食料品"},
		mftest.Row{Date: "03/02", Description: "口座振替", Amount: "-3,000円", Classes: []string{"is-transfer"}},
	)
	path := filepath.Join(t.TempDir(), "cf.html")
	require.NoError(t, os.WriteFile(path, []byte(html), 0o644))

	page, err := openStaticPage(path, "https://moneyforward.com/cf")
	require.NoError(t, err)

	var out bytes.Buffer
	err = preview(context.Background(), a, page, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "2024/03")
	require.Contains(t, out.String(), "スーパー")
	require.NotContains(t, out.String(), "口座振替")
	require.Contains(t, out.String(), "2 rows, 1 excluded")

	// nothing is persisted by a preview
	_, ok, err := a.sessions.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPreviewWithoutTable(t *testing.T) {
	a := testApp(t)
	a.cfg.Sync.LocateTimeoutMs = 10
	a.cfg.Sync.PollIntervalMs = 1

	path := filepath.Join(t.TempDir(), "empty.html")
	require.NoError(t, os.WriteFile(path, []byte("<html><body>ログイン</body></html>"), 0o644))
	page, err := openStaticPage(path, "https://moneyforward.com/cf")
	require.NoError(t, err)

	err = preview(context.Background(), a, page, &bytes.Buffer{})
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, printStatus(ctx, a, &out))
	require.Contains(t, out.String(), "(not set)")
	require.Contains(t, out.String(), "never")
	require.Contains(t, out.String(), "none")

	pending := session.New(session.ModeManual)
	pending.Planned = true
	pending.Queue = period.Backward(period.New(2024, time.February), 3)
	require.NoError(t, a.sessions.Save(ctx, pending))
	require.NoError(t, a.sessions.RequestStop(ctx))

	out.Reset()
	require.NoError(t, printStatus(ctx, a, &out))
	require.Contains(t, out.String(), pending.RunID.String())
	require.Contains(t, out.String(), "2024/02 .. 2023/12 (3 months)")
	require.Contains(t, out.String(), "Stop requested")
}

func TestStatusLeavesUnknownSession(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	require.NoError(t, a.kv.Set(ctx, map[string]string{
		session.KeyPendingMode: "sideways",
		session.KeyData:        "[]",
	}))

	var out bytes.Buffer
	require.NoError(t, printStatus(ctx, a, &out))
	require.Contains(t, out.String(), "sideways (unknown")

	_, present, err := a.kv.Get(ctx, session.KeyPendingMode)
	require.NoError(t, err)
	require.True(t, present)
}
