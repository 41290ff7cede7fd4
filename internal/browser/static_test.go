package browser

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaticPageClick(t *testing.T) {
	page, err := NewStaticPage("https://moneyforward.com/cf", `<button class="prev">前月</button>`)
	require.NoError(t, err)

	clicked := 0
	page.OnClick = func(p *StaticPage, selector string) error {
		clicked++
		p.SetHTML(`<div id="after"></div>`)
		return nil
	}

	ok, err := page.Click(context.Background(), ".next")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, clicked)

	ok, err = page.Click(context.Background(), ".prev")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, clicked)

	select {
	case <-page.Changes():
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}

	doc, err := page.Document(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, doc.Find("#after").Length())
}

func TestStaticPageNavigate(t *testing.T) {
	page, err := NewStaticPage("https://moneyforward.com/cf", "")
	require.NoError(t, err)

	var seen *url.URL
	page.OnNavigate = func(p *StaticPage, address *url.URL) error {
		seen = address
		return nil
	}

	err = page.Navigate(context.Background(), "/cf?year=2024&month=3")
	require.NoError(t, err)
	require.Equal(t, "https://moneyforward.com/cf?year=2024&month=3", seen.String())

	current, err := page.URL(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2024", current.Query().Get("year"))
}
