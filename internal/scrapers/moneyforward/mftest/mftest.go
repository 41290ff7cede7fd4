// Package mftest renders transaction pages shaped like the household-budgeting
// site for tests.
package mftest

import (
	"fmt"
	"html"
	"strings"

	"mfsync/internal/period"
)

type Row struct {
	// Date is the on-page text, like "03/15(金)".
	Date           string
	Description    string
	Amount         string
	Counterparty   string
	LargeCategory  string
	MiddleCategory string
	// Classes are added to the <tr>, like "is-transfer".
	Classes []string
}

type PageOptions struct {
	// Header replaces the default "YYYY年M月" header text, "-" omits the header.
	Header string
	// PrevHref is the href of the previous-month control, "-" omits the control.
	PrevHref string
	// Loading renders a visible loading overlay.
	Loading bool
	// Legacy renders the oldest markup: #transaction_list_body with
	// positional cells only.
	Legacy bool
}

// Page renders the transaction list of p.
func Page(p period.Period, opts PageOptions, rows ...Row) string {
	var b strings.Builder
	b.WriteString("<html><body>\n")

	switch opts.Header {
	case "":
		fmt.Fprintf(&b, `<div class="fc-header-title"><h3>%d年%d月</h3></div>`+"\n", p.Year, int(p.Month))
	case "-":
	default:
		fmt.Fprintf(&b, `<div class="fc-header-title"><h3>%s</h3></div>`+"\n", html.EscapeString(opts.Header))
	}

	switch opts.PrevHref {
	case "-":
	case "":
		prev := p.Prev()
		fmt.Fprintf(&b, `<a class="fc-button-prev" href="/cf?year=%d&month=%d">前月</a>`+"\n", prev.Year, int(prev.Month))
	default:
		fmt.Fprintf(&b, `<a class="fc-button-prev" href="%s">前月</a>`+"\n", html.EscapeString(opts.PrevHref))
	}

	if opts.Loading {
		b.WriteString(`<div class="loading">読み込み中</div>` + "\n")
	} else {
		b.WriteString(`<div class="loading" style="display: none">読み込み中</div>` + "\n")
	}

	if opts.Legacy {
		b.WriteString(`<table><tbody id="transaction_list_body">` + "\n")
		for _, r := range rows {
			fmt.Fprintf(&b,
				`<tr class="%s"><td><input type="checkbox"></td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`+"\n",
				strings.Join(r.Classes, " "),
				html.EscapeString(r.Date), html.EscapeString(r.Description), html.EscapeString(r.Amount),
				html.EscapeString(r.Counterparty), html.EscapeString(r.LargeCategory), html.EscapeString(r.MiddleCategory),
			)
		}
		b.WriteString("</tbody></table>\n</body></html>")
		return b.String()
	}

	b.WriteString(`<table id="cf-detail-table"><tbody>` + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b,
			`<tr class="transaction_list %s"><td class="calc"></td><td class="date">%s</td><td class="content"><span>%s</span></td><td class="amount"><span class="offset">%s</span></td><td class="qt-financial_institution">%s</td><td class="lctg">%s</td><td class="mctg">%s</td></tr>`+"\n",
			strings.Join(r.Classes, " "),
			html.EscapeString(r.Date), html.EscapeString(r.Description), html.EscapeString(r.Amount),
			html.EscapeString(r.Counterparty), html.EscapeString(r.LargeCategory), html.EscapeString(r.MiddleCategory),
		)
	}
	b.WriteString("</tbody></table>\n</body></html>")
	return b.String()
}

// Rows builds n distinct rows dated inside p, tagged so they differ between periods.
func Rows(p period.Period, n int, tag string) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			Date:           fmt.Sprintf("%02d/%02d(月)", int(p.Month), i+1),
			Description:    fmt.Sprintf("%s-%d", tag, i),
			Amount:         fmt.Sprintf("-%d,000円", i+1),
			Counterparty:   "三井住友カード",
			LargeCategory:  "食費",
			MiddleCategory: "外食",
		}
	}
	return rows
}
