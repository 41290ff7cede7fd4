package moneyforward

import (
	"net/url"
	"regexp"
	"strconv"
	"time"

	"mfsync/internal/components/chrono"
	"mfsync/internal/components/telemetry"
	"mfsync/internal/period"
	"mfsync/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const report_resolver_resolve = "resolver.resolve"

// Source names the strategy that determined the displayed period.
type Source string

const (
	SourceQuery       Source = "query"
	SourceHeader      Source = "header"
	SourcePrevControl Source = "prev-control"
	SourceRows        Source = "rows"
	SourceTextScan    Source = "text-scan"
	SourceClock       Source = "clock"
)

const (
	rowsToInspect = 5
	textScanLimit = 3000
)

var (
	kanjiYearMonth = regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月`)
	yearMonth      = regexp.MustCompile(`(\d{4})\s*(?:年|/|-)\s*(\d{1,2})(?:\D|$)`)
	monthOnly      = regexp.MustCompile(`(?:^|\D)(\d{1,2})\s*月`)
)

// Resolver works out which month the page displays. It holds no state
// between calls because navigation can silently land somewhere unexpected.
type Resolver struct {
	sel   Selectors
	clock chrono.API
	tel   telemetry.API
}

func NewResolver(sel Selectors, clock chrono.API, tel telemetry.API) Resolver {
	return Resolver{sel: sel, clock: clock, tel: tel}
}

// Resolve tries, in order: query parameters, the header, the previous-month
// control's destination, full dates in the first rows, a scan of the leading
// page text and finally the clock.
func (r Resolver) Resolve(address *url.URL, doc *goquery.Document) (period.Period, Source) {
	if p, ok := FromQuery(address, r.sel.Address); ok {
		return p, SourceQuery
	}
	if doc != nil {
		if p, ok := r.fromHeader(doc); ok {
			return p, SourceHeader
		}
		if p, ok := r.fromPrevControl(address, doc); ok {
			return p, SourcePrevControl
		}
		if p, ok := r.fromRows(doc); ok {
			return p, SourceRows
		}
		if p, ok := firstYearMonth(kanjiYearMonth, htmlutil.LeadingText(doc.Find("body"), textScanLimit)); ok {
			return p, SourceTextScan
		}
	}

	now := period.Of(r.clock.Now())
	r.tel.ReportWarning(report_resolver_resolve, "could not determine displayed period, assuming current month", now.String())
	return now, SourceClock
}

// FromQuery reads the period from year/month parameters or a "from" date.
func FromQuery(address *url.URL, addr Address) (period.Period, bool) {
	if address == nil {
		return period.Period{}, false
	}
	query := address.Query()

	year, yerr := strconv.Atoi(query.Get(addr.YearParam))
	month, merr := strconv.Atoi(query.Get(addr.MonthParam))
	if yerr == nil && merr == nil {
		p := period.Period{Year: year, Month: time.Month(month)}
		if p.Valid() {
			return p, true
		}
	}

	if addr.FromParam != "" {
		if p, ok := firstYearMonth(fullDatePattern, query.Get(addr.FromParam)); ok {
			return p, true
		}
	}
	return period.Period{}, false
}

// For returns the canonical address displaying p.
func (a Address) For(p period.Period) string {
	base, err := url.Parse(a.Base)
	if err != nil {
		base = &url.URL{Path: a.Base}
	}
	query := base.Query()
	query.Set(a.YearParam, strconv.Itoa(p.Year))
	query.Set(a.MonthParam, strconv.Itoa(int(p.Month)))
	base.RawQuery = query.Encode()
	return base.String()
}

func firstYearMonth(pattern *regexp.Regexp, text string) (period.Period, bool) {
	groups := pattern.FindStringSubmatch(text)
	if groups == nil {
		return period.Period{}, false
	}
	year, _ := strconv.Atoi(groups[1])
	month, _ := strconv.Atoi(groups[2])
	p := period.Period{Year: year, Month: time.Month(month)}
	return p, p.Valid()
}

// HeaderText returns the text of the first header candidate present.
func (r Resolver) HeaderText(doc *goquery.Document) string {
	for _, candidate := range r.sel.Header {
		found := doc.Find(candidate).First()
		if found.Length() > 0 {
			if text := htmlutil.Text(found); text != "" {
				return text
			}
		}
	}
	return ""
}

func (r Resolver) fromHeader(doc *goquery.Document) (period.Period, bool) {
	text := r.HeaderText(doc)
	if p, ok := firstYearMonth(kanjiYearMonth, text); ok {
		return p, true
	}
	return firstYearMonth(yearMonth, text)
}

// fromPrevControl reads the destination of the previous-month control, the
// displayed period is the month after it.
func (r Resolver) fromPrevControl(address *url.URL, doc *goquery.Document) (period.Period, bool) {
	for _, candidate := range r.sel.PrevMonth {
		href, ok := doc.Find(candidate).First().Attr("href")
		if !ok {
			continue
		}
		target, err := url.Parse(href)
		if err != nil {
			continue
		}
		if address != nil {
			target = address.ResolveReference(target)
		}
		if p, ok := FromQuery(target, r.sel.Address); ok {
			return p.Next(), true
		}
	}
	return period.Period{}, false
}

func (r Resolver) fromRows(doc *goquery.Document) (period.Period, bool) {
	table, _, ok := NewLocator(r.sel.Table, r.tel).Find(doc)
	if !ok {
		return period.Period{}, false
	}

	var out period.Period
	found := false
	table.Find(r.sel.Rows).EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i >= rowsToInspect {
			return false
		}
		texts := []string{}
		for _, candidate := range r.sel.Fields.Date {
			cell := row.Find(candidate).First()
			texts = append(texts, cell.AttrOr(sortableDateAttr, ""), htmlutil.Text(cell))
		}
		for _, text := range texts {
			if p, ok := firstYearMonth(fullDatePattern, text); ok {
				out = p
				found = true
				return false
			}
		}
		return true
	})
	return out, found
}

// HeaderMatches reports whether the page header shows target.
func (r Resolver) HeaderMatches(doc *goquery.Document, target period.Period) bool {
	text := r.HeaderText(doc)
	if text == "" {
		return false
	}
	return Matches(text, target)
}

// Matches reports whether a header text denotes target. When the text holds
// year-month pairs ("2024年3月", "2024/03/01 - 2024/03/31") one of them must
// equal target; headers without a year only need to mention "M月".
func Matches(headerText string, target period.Period) bool {
	text := htmlutil.NormalizeText(headerText)

	pairs := kanjiYearMonth.FindAllStringSubmatch(text, -1)
	pairs = append(pairs, yearMonth.FindAllStringSubmatch(text, -1)...)
	if len(pairs) > 0 {
		for _, groups := range pairs {
			year, _ := strconv.Atoi(groups[1])
			month, _ := strconv.Atoi(groups[2])
			if year == target.Year && time.Month(month) == target.Month {
				return true
			}
		}
		return false
	}

	for _, groups := range monthOnly.FindAllStringSubmatch(text, -1) {
		month, _ := strconv.Atoi(groups[1])
		if time.Month(month) == target.Month {
			return true
		}
	}
	return false
}
