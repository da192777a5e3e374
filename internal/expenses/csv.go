package expenses

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agext/levenshtein"
	"golang.org/x/text/encoding/charmap"

	"github.com/kzhdev5/tbank-bridge/internal/store"
)

// The bank exports statements in windows-1251 with these column headers.
const (
	colDate        = "Дата операции"
	colCard        = "Номер карты"
	colStatus      = "Статус"
	colAmount      = "Сумма платежа"
	colDescription = "Описание"
)

// Descriptions excluded from the import: internal movements, not spending.
var skipDescriptions = map[string]bool{
	"Перевод между счетами":        true,
	"Пополнение брокерского счета": true,
}

// bankTimeLayout is the operation timestamp format in the export.
const bankTimeLayout = "02.01.2006 15:04:05"

// refundSimilarity is the description-similarity threshold above which two
// opposite-signed transactions close in time are treated as a purchase plus
// its refund and dropped together.
const refundSimilarity = 0.70

// Record is one spend transaction after filtering and categorization.
type Record struct {
	Time        time.Time
	Card        string
	Amount      float64 // positive spend value
	Description string
	Category    string
}

// ImportResult is the outcome of parsing one export file.
type ImportResult struct {
	TotalExpense float64
	Cards        []string
	Records      []Record
}

// transaction is a raw row before refund-pair elimination.
type transaction struct {
	time        time.Time
	card        string
	amount      float64 // signed
	description string
}

// ParseCSV reads a bank CSV export (windows-1251, semicolon-separated),
// drops internal transfers and failed operations, eliminates refund pairs,
// and returns the remaining spends categorized and converted to loc.
func ParseCSV(r io.Reader, loc *time.Location, cat *Categorizer) (*ImportResult, error) {
	bankTZ, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return nil, fmt.Errorf("failed to load bank timezone: %w", err)
	}

	reader := csv.NewReader(charmap.Windows1251.NewDecoder().Reader(r))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read export header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colDate, colCard, colStatus, colAmount, colDescription} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("export is missing column %q", required)
		}
	}

	var txs []transaction
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read export row: %w", err)
		}
		if len(row) < len(header) {
			continue
		}

		description := row[col[colDescription]]
		if skipDescriptions[description] || row[col[colStatus]] != "OK" {
			continue
		}

		amount, err := strconv.ParseFloat(strings.ReplaceAll(row[col[colAmount]], ",", "."), 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", row[col[colAmount]], err)
		}

		opTime, err := time.ParseInLocation(bankTimeLayout, row[col[colDate]], bankTZ)
		if err != nil {
			return nil, fmt.Errorf("failed to parse operation time %q: %w", row[col[colDate]], err)
		}

		txs = append(txs, transaction{
			time:        opTime.In(loc),
			card:        row[col[colCard]],
			amount:      amount,
			description: description,
		})
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].time.After(txs[j].time) })

	result := &ImportResult{}
	cardSet := map[string]bool{}

	appendSpend := func(tx transaction) {
		if tx.amount >= 0 {
			return
		}
		spend := math.Abs(tx.amount)
		result.TotalExpense += spend
		category := ""
		if cat != nil {
			category = cat.Categorize(tx.description)
		}
		result.Records = append(result.Records, Record{
			Time:        tx.time,
			Card:        tx.card,
			Amount:      spend,
			Description: tx.description,
			Category:    category,
		})
		if !cardSet[tx.card] {
			cardSet[tx.card] = true
			result.Cards = append(result.Cards, tx.card)
		}
	}

	i := 0
	for i < len(txs)-1 {
		if isRefundPair(txs[i], txs[i+1]) {
			i += 2
			continue
		}
		appendSpend(txs[i])
		i++
	}
	if i == len(txs)-1 {
		appendSpend(txs[i])
	}

	return result, nil
}

// isRefundPair reports whether two adjacent (time-sorted) transactions are a
// purchase and its refund: near-identical descriptions, within a minute of
// each other, equal magnitude, opposite sign.
func isRefundPair(a, b transaction) bool {
	if a.amount*b.amount >= 0 {
		return false
	}
	if math.Abs(a.amount) != math.Abs(b.amount) {
		return false
	}
	at := a.time.Truncate(time.Minute)
	bt := b.time.Truncate(time.Minute)
	if d := at.Sub(bt); d < -time.Minute || d > time.Minute {
		return false
	}
	return tokenSortSimilarity(a.description, b.description) > refundSimilarity
}

// tokenSortSimilarity compares two strings after lowercasing and sorting
// their words, so word order does not count against the match.
func tokenSortSimilarity(a, b string) float64 {
	return levenshtein.Similarity(sortTokens(a), sortTokens(b), nil)
}

func sortTokens(s string) string {
	tokens := strings.Fields(strings.ToLower(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// StoreExpenses converts parsed records into store rows.
func (r *ImportResult) StoreExpenses() []store.Expense {
	out := make([]store.Expense, 0, len(r.Records))
	for _, rec := range r.Records {
		out = append(out, store.Expense{
			Timestamp:   rec.Time.UnixMilli(),
			CardNumber:  rec.Card,
			Amount:      rec.Amount,
			Description: rec.Description,
		})
	}
	return out
}
