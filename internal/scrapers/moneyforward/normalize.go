package moneyforward

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mfsync/internal/period"
	"mfsync/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// leadingRows is how many rows feed the page fingerprint used to notice that
// the table was re-rendered.
const leadingRows = 3

// sortableDateAttr carries "YYYY/MM/DD-..." on date cells of the current markup.
const sortableDateAttr = "data-table-sortable-value"

var (
	fullDatePattern  = regexp.MustCompile(`(\d{4})\s*[/\-.年]\s*(\d{1,2})\s*[/\-.月]\s*(\d{1,2})`)
	shortDatePattern = regexp.MustCompile(`(\d{1,2})\s*[/\-.月]\s*(\d{1,2})`)
	amountNoise      = strings.NewReplacer(",", "", "，", "", "円", "", "¥", "", "￥", "", " ", "", "\u00a0", "", "\t", "", "\n", "", "−", "-", "－", "-", "+", "")
)

// Normalizer turns table rows into records.
type Normalizer struct {
	sel Selectors
}

func NewNormalizer(sel Selectors) Normalizer {
	return Normalizer{sel: sel}
}

// Extraction is the result of reading one table.
type Extraction struct {
	Records []Record
	// Rows counts every row seen, including skipped ones.
	Rows int
	// Excluded counts transfer and excluded-from-totals rows.
	Excluded int
	// Stale counts rows dated outside of the target period.
	Stale int
	// Fingerprint hashes the raw text of the leading rows, it is empty for an
	// empty table.
	Fingerprint string
}

// Extract normalizes every row of table for the target period. Rows dated in
// another month are left over from a page transition and are dropped.
func (n Normalizer) Extract(table *goquery.Selection, target period.Period) Extraction {
	var out Extraction
	var leading []string

	table.Find(n.sel.Rows).Each(func(i int, row *goquery.Selection) {
		out.Rows++
		if len(leading) < leadingRows {
			leading = append(leading, htmlutil.Text(row))
		}

		if n.Excluded(row) {
			out.Excluded++
			return
		}
		record, ok := n.Normalize(row, target)
		if !ok {
			return
		}
		if record.Date[:7] != fmt.Sprintf("%04d/%02d", target.Year, int(target.Month)) {
			out.Stale++
			return
		}
		out.Records = append(out.Records, record)
	})

	if len(leading) > 0 {
		sum := sha256.Sum256([]byte(strings.Join(leading, "\n")))
		out.Fingerprint = hex.EncodeToString(sum[:])
	}
	return out
}

// Excluded reports whether the row is flagged as a transfer between own
// accounts or as excluded from totals.
func (n Normalizer) Excluded(row *goquery.Selection) bool {
	for _, sel := range n.sel.Excluded {
		if row.Is(sel) || row.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func (n Normalizer) named(row *goquery.Selection, candidates []string) *goquery.Selection {
	for _, sel := range candidates {
		found := row.Find(sel).First()
		if found.Length() > 0 && htmlutil.Text(found) != "" {
			return found
		}
	}
	return nil
}

func (n Normalizer) field(row *goquery.Selection, cells *goquery.Selection, candidates []string, name string) string {
	if found := n.named(row, candidates); found != nil {
		if name == FieldDate {
			if sortable, ok := found.Attr(sortableDateAttr); ok && fullDatePattern.MatchString(sortable) {
				return sortable
			}
		}
		return htmlutil.Text(found)
	}
	offset, ok := n.sel.Columns[name]
	if !ok || offset < 0 || offset >= cells.Length() {
		return ""
	}
	return htmlutil.Text(cells.Eq(offset))
}

// Normalize reads a single row. It returns false when the row lacks a date,
// description or amount, or when those cannot be parsed. The year of the date
// comes from the target period unless the row text carries one.
func (n Normalizer) Normalize(row *goquery.Selection, target period.Period) (Record, bool) {
	cells := row.ChildrenFiltered("td")

	dateText := n.field(row, cells, n.sel.Fields.Date, FieldDate)
	description := n.field(row, cells, n.sel.Fields.Description, FieldDescription)
	amountText := n.field(row, cells, n.sel.Fields.Amount, FieldAmount)
	if dateText == "" || description == "" || amountText == "" {
		return Record{}, false
	}

	date, ok := NormalizeDate(dateText, target)
	if !ok {
		return Record{}, false
	}
	amount, ok := n.NormalizeAmount(amountText)
	if !ok {
		return Record{}, false
	}

	counterparty := n.field(row, cells, n.sel.Fields.Counterparty, FieldCounterparty)
	category := n.category(row, cells)

	return NewRecord(date, description, amount, counterparty, category), true
}

func (n Normalizer) category(row *goquery.Selection, cells *goquery.Selection) string {
	large := n.named(row, n.sel.Fields.LargeCategory)
	middle := n.named(row, n.sel.Fields.MiddleCategory)

	switch {
	case large != nil && middle != nil:
		return htmlutil.Text(large) + n.sel.CategorySeparator + htmlutil.Text(middle)
	case large != nil:
		return htmlutil.Text(large)
	}
	if combined := n.named(row, n.sel.Fields.Category); combined != nil {
		return htmlutil.Text(combined)
	}

	large = cellAt(cells, n.sel.Columns, FieldLargeCategory)
	middle = cellAt(cells, n.sel.Columns, FieldMiddleCategory)
	largeText, middleText := "", ""
	if large != nil {
		largeText = htmlutil.Text(large)
	}
	if middle != nil {
		middleText = htmlutil.Text(middle)
	}
	switch {
	case largeText != "" && middleText != "":
		return largeText + n.sel.CategorySeparator + middleText
	default:
		return largeText
	}
}

func cellAt(cells *goquery.Selection, columns map[string]int, name string) *goquery.Selection {
	offset, ok := columns[name]
	if !ok || offset < 0 || offset >= cells.Length() {
		return nil
	}
	return cells.Eq(offset)
}

// NormalizeDate turns "03/15(金)" or "2024/03/15" into "YYYY/MM/DD".
func NormalizeDate(text string, target period.Period) (string, bool) {
	year := target.Year
	var month, day int

	if groups := fullDatePattern.FindStringSubmatch(text); groups != nil {
		year, _ = strconv.Atoi(groups[1])
		month, _ = strconv.Atoi(groups[2])
		day, _ = strconv.Atoi(groups[3])
	} else if groups := shortDatePattern.FindStringSubmatch(text); groups != nil {
		month, _ = strconv.Atoi(groups[1])
		day, _ = strconv.Atoi(groups[2])
	} else {
		return "", false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(month) || t.Day() != day {
		return "", false
	}
	return t.Format("2006/01/02"), true
}

// NormalizeAmount strips thousands separators, currency marks and transfer
// annotations, keeping the sign.
func (n Normalizer) NormalizeAmount(text string) (string, bool) {
	for _, annotation := range n.sel.TransferAnnotations {
		text = strings.ReplaceAll(text, annotation, "")
	}
	text = amountNoise.Replace(text)
	if text == "" {
		return "", false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return "", false
	}
	return d.String(), true
}
