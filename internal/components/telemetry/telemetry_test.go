package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := &Recorder{}
	tel := NewScopedAPI("navigator", rec)

	tel.ReportBroken("previous", errors.New("click failed"))
	tel.ReportWarning("resolve", "fell back to clock")
	tel.ReportCount("periods", 3)

	broken := rec.Reports("broken", "")
	require.Len(t, broken, 1)
	require.Equal(t, "navigator: previous", broken[0].ID)
	require.EqualError(t, broken[0].Params[0].(error), "click failed")

	require.Len(t, rec.Reports("warning", "navigator: resolve"), 1)
	require.Empty(t, rec.Reports("warning", "orchestrator"))

	counts := rec.Reports("count", "periods")
	require.Len(t, counts, 1)
	require.Equal(t, int64(3), counts[0].Count)
}
