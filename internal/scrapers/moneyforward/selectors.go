package moneyforward

import (
	"mfsync/pkg/configutil"
)

// Field names used as keys of Selectors.Columns.
const (
	FieldDate           = "date"
	FieldDescription    = "description"
	FieldAmount         = "amount"
	FieldCounterparty   = "counterparty"
	FieldLargeCategory  = "large_category"
	FieldMiddleCategory = "middle_category"
)

// FieldSelectors lists, per record field, the cell markers to try inside a
// row, most specific first.
type FieldSelectors struct {
	Date           []string `json:"date"`
	Description    []string `json:"description"`
	Amount         []string `json:"amount"`
	Counterparty   []string `json:"counterparty"`
	LargeCategory  []string `json:"large_category"`
	MiddleCategory []string `json:"middle_category"`
	// Category is tried when neither large nor middle category markers matched.
	Category []string `json:"category"`
}

// Address describes how the transaction page encodes the displayed period in
// its query string.
type Address struct {
	Base       string `json:"base"`
	YearParam  string `json:"year_param"`
	MonthParam string `json:"month_param"`
	// FromParam carries a "YYYY/MM/DD" start date on some page variants.
	FromParam string `json:"from_param"`
}

// Selectors is every locator the synchronizer uses against the page. Lists
// are evaluated in order and the first match wins, so new site variants are
// added by prepending candidates rather than by new code.
type Selectors struct {
	Table     []string `json:"table"`
	Rows      string   `json:"rows"`
	Header    []string `json:"header"`
	PrevMonth []string `json:"prev_month"`
	Loading   []string `json:"loading"`

	Fields FieldSelectors `json:"fields"`
	// Columns are zero-based cell offsets used when no field marker matched.
	Columns map[string]int `json:"columns"`

	// Excluded marks rows that are transfers between own accounts or are
	// excluded from totals, they are matched against the row and its cells.
	Excluded []string `json:"excluded"`
	// TransferAnnotations are stripped from amount text.
	TransferAnnotations []string `json:"transfer_annotations"`
	CategorySeparator   string   `json:"category_separator"`

	Address Address `json:"address"`
}

// DefaultSelectors returns the candidates for the current markup followed by
// the names older page revisions used.
func DefaultSelectors() Selectors {
	return Selectors{
		Table: []string{
			"#cf-detail-table tbody",
			"table.transaction-table tbody",
			"#transaction_list_body",
			"table[id*='transaction'] tbody",
		},
		Rows: "tr",
		Header: []string{
			".fc-header-title h3",
			".fc-header-title",
			".transaction_list .heading-small",
			"#in_out .heading-normal",
			".date-range",
		},
		PrevMonth: []string{
			".fc-button-prev",
			"button.fc-prev-button",
			"#menu_range_prev",
			"#bda-in-closing-month-asset a:first-child",
		},
		Loading: []string{
			".loading",
			"#loading",
			".spinner",
			".blockUI",
		},
		Fields: FieldSelectors{
			Date:           []string{"td.date", ".date"},
			Description:    []string{"td.content", ".content"},
			Amount:         []string{"td.amount .offset", "td.amount", ".amount"},
			Counterparty:   []string{"td.qt-financial_institution", ".qt-financial_institution", ".source", ".account"},
			LargeCategory:  []string{"td.lctg", ".lctg"},
			MiddleCategory: []string{"td.mctg", ".mctg"},
			Category:       []string{".category"},
		},
		Columns: map[string]int{
			FieldDate:           1,
			FieldDescription:    2,
			FieldAmount:         3,
			FieldCounterparty:   4,
			FieldLargeCategory:  5,
			FieldMiddleCategory: 6,
		},
		Excluded: []string{
			".is-transfer",
			".mf-grayout",
			".transfer",
			".excluded",
		},
		TransferAnnotations: []string{"(振替)", "（振替）"},
		CategorySeparator:   "/",
		Address: Address{
			Base:       "https://moneyforward.com/cf",
			YearParam:  "year",
			MonthParam: "month",
			FromParam:  "from",
		},
	}
}

// WithDefaults fills every field the user left empty from DefaultSelectors.
func WithDefaults(custom Selectors) (Selectors, error) {
	err := configutil.WithDefaults(&custom, DefaultSelectors())
	return custom, err
}
