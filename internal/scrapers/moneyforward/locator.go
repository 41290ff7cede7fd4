package moneyforward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mfsync/internal/browser"
	"mfsync/internal/components/telemetry"
	"mfsync/pkg/waitutil"

	"github.com/PuerkitoBio/goquery"
)

const report_locator_wait = "locator.wait"

// ErrTargetNotFound means no candidate matched before the timeout. Callers
// usually treat it as a period without records.
var ErrTargetNotFound = errors.New("target element not found")

// Locator finds the first element matching an ordered list of candidates.
// It never caches a match: every call looks at a fresh document because the
// single-page application swaps subtrees in place.
type Locator struct {
	candidates []string
	tel        telemetry.API
}

func NewLocator(candidates []string, tel telemetry.API) Locator {
	return Locator{candidates: candidates, tel: tel}
}

// Find returns the first match in doc along with the candidate that matched.
func (l Locator) Find(doc *goquery.Document) (*goquery.Selection, string, bool) {
	for _, candidate := range l.candidates {
		found := doc.Find(candidate).First()
		if found.Length() > 0 {
			return found, candidate, true
		}
	}
	return nil, "", false
}

// Wait re-reads the page until a candidate appears, waking up on DOM changes
// and polling every pollInterval in case a change went unobserved.
func (l Locator) Wait(ctx context.Context, page browser.Page, timeout, pollInterval time.Duration) (*goquery.Selection, error) {
	var match *goquery.Selection
	err := waitutil.Await(ctx, func(ctx context.Context) (bool, error) {
		doc, err := page.Document(ctx)
		if err != nil {
			return false, err
		}
		found, candidate, ok := l.Find(doc)
		if !ok {
			return false, nil
		}
		l.tel.ReportDebug(report_locator_wait, candidate)
		match = found
		return true, nil
	}, waitutil.Options{
		Timeout:      timeout,
		PollInterval: pollInterval,
		Notify:       page.Changes(),
	})
	if errors.Is(err, waitutil.ErrTimeout) {
		l.tel.ReportWarning(report_locator_wait, strings.Join(l.candidates, ", "), timeout.String())
		return nil, fmt.Errorf("%w: tried %s", ErrTargetNotFound, strings.Join(l.candidates, ", "))
	}
	if err != nil {
		return nil, err
	}
	return match, nil
}

// Visible reports whether any candidate matches an element that is not hidden
// through an inline style, the hidden attribute or a hiding class on itself
// or an ancestor.
func Visible(doc *goquery.Document, candidates []string) bool {
	for _, candidate := range candidates {
		visible := false
		doc.Find(candidate).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !hidden(s) {
				visible = true
				return false
			}
			return true
		})
		if visible {
			return true
		}
	}
	return false
}

func hidden(s *goquery.Selection) bool {
	for cur := s; cur.Length() > 0; cur = cur.Parent() {
		if _, ok := cur.Attr("hidden"); ok {
			return true
		}
		style := strings.ReplaceAll(strings.ToLower(cur.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
		if cur.HasClass("hidden") || cur.HasClass("d-none") {
			return true
		}
	}
	return false
}
