package moneyforward

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Record is one normalized transaction, the unit sent to the endpoint.
type Record struct {
	ID           string `json:"id"`
	Date         string `json:"date"`
	Description  string `json:"description"`
	Amount       string `json:"amount"`
	Counterparty string `json:"counterparty"`
	Category     string `json:"category"`
}

const hashDelimiter = "\x1f"

// Hash is the identity of a transaction, derived only from its normalized
// fields so re-scraping the same transaction always yields the same id.
func Hash(date, description, amount, counterparty, category string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		date, description, amount, counterparty, category,
	}, hashDelimiter)))
	return hex.EncodeToString(sum[:])
}

// NewRecord builds a record and its identity from already normalized fields.
func NewRecord(date, description, amount, counterparty, category string) Record {
	return Record{
		ID:           Hash(date, description, amount, counterparty, category),
		Date:         date,
		Description:  description,
		Amount:       amount,
		Counterparty: counterparty,
		Category:     category,
	}
}

// Dedupe keeps the first record of every id, preserving order.
func Dedupe(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
