package period

import (
	"fmt"
	"time"
)

// Period is a single calendar month the transaction page can display.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

func New(year int, month time.Month) Period {
	return Period{Year: year, Month: month}.normalize()
}

// Of returns the period containing t.
func Of(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) normalize() Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Year: t.Year(), Month: t.Month()}
}

// Valid reports whether the month is in range and the year is plausible for
// a transaction history.
func (p Period) Valid() bool {
	return p.Month >= time.January && p.Month <= time.December &&
		p.Year >= 1970 && p.Year <= 9999
}

// AddMonths returns the period n months after p, n may be negative.
func (p Period) AddMonths(n int) Period {
	return Period{Year: p.Year, Month: p.Month + time.Month(n)}.normalize()
}

func (p Period) Prev() Period {
	return p.AddMonths(-1)
}

func (p Period) Next() Period {
	return p.AddMonths(1)
}

func (p Period) index() int {
	return p.Year*12 + int(p.Month) - 1
}

func (p Period) Before(other Period) bool {
	return p.index() < other.index()
}

// MonthsBetween returns how many months `to` is after `from`.
func MonthsBetween(from, to Period) int {
	return to.index() - from.index()
}

func (p Period) String() string {
	return fmt.Sprintf("%04d/%02d", p.Year, int(p.Month))
}

// Backward lists `count` periods starting at `start` going back in time, newest first.
func Backward(start Period, count int) []Period {
	out := make([]Period, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, start.AddMonths(-i))
	}
	return out
}

// Parse reads "YYYY-MM" or "YYYY/MM".
func Parse(s string) (Period, error) {
	for _, layout := range []string{"2006-01", "2006/01", "2006-1", "2006/1"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Of(t), nil
		}
	}
	return Period{}, fmt.Errorf("invalid period %q, expected YYYY-MM", s)
}
