// Package custodian reads custodial position feeds as a supplementary source
// of financial account data.
package custodian

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/advisorhub/backend/internal/domain/crm"
)

// Feed errors
var (
	// ErrEmptyFeed is returned when the feed has no content
	ErrEmptyFeed = errors.New("custodian feed is empty")
	// ErrInvalidEncoding is returned when the feed is not UTF-8
	ErrInvalidEncoding = errors.New("custodian feed is not valid UTF-8")
	// ErrMissingHeader is returned when the feed has no header row
	ErrMissingHeader = errors.New("custodian feed missing header row")
	// ErrMissingColumns is returned when required columns are absent
	ErrMissingColumns = errors.New("custodian feed missing required columns")
)

// Feed column names
const (
	ColAccountID     = "account_id"
	ColAccountName   = "account_name"
	ColAccountType   = "account_type"
	ColTaxStatus     = "tax_status"
	ColBalance       = "balance"
	ColHouseholdID   = "household_id"
	ColHouseholdName = "household_name"
	ColOwnerName     = "owner_name"
	ColStatus        = "status"
	ColOpenDate      = "open_date"
)

var requiredColumns = []string{ColAccountID, ColBalance}

const encodingCheckSize = 4096

// RowError describes a feed row that could not be turned into an account
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// FeedReader parses a custodian positions CSV
type FeedReader struct {
	reader    *csv.Reader
	headerMap map[string]int
}

// NewFeedReader prepares r for reading: strips a UTF-8 BOM, checks the
// encoding and reads the header row.
func NewFeedReader(r io.Reader) (*FeedReader, error) {
	br := bufio.NewReader(r)

	bom, err := br.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	if len(bom) == 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	head, err := br.Peek(encodingCheckSize)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	if len(head) == 0 {
		return nil, ErrEmptyFeed
	}
	if !validUTF8Prefix(head, len(head) == encodingCheckSize) {
		return nil, ErrInvalidEncoding
	}

	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	fr := &FeedReader{reader: cr, headerMap: make(map[string]int)}
	if err := fr.readHeader(); err != nil {
		return nil, err
	}
	return fr, nil
}

// validUTF8Prefix reports whether b is UTF-8. When b was cut from a longer
// stream a trailing incomplete rune is allowed.
func validUTF8Prefix(b []byte, truncated bool) bool {
	if utf8.Valid(b) {
		return true
	}
	if !truncated {
		return false
	}
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			return !utf8.FullRune(b[i:]) && utf8.Valid(b[:i])
		}
	}
	return false
}

func (f *FeedReader) readHeader() error {
	record, err := f.reader.Read()
	if err == io.EOF {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	for i, h := range record {
		f.headerMap[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := f.headerMap[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

// ReadAll returns every parsable account in the feed. Rows that fail to
// parse are reported as RowErrors and skipped; blank rows are ignored.
func (f *FeedReader) ReadAll() ([]crm.FinancialAccount, []RowError, error) {
	accounts := []crm.FinancialAccount{}
	var rowErrs []RowError
	for {
		record, err := f.reader.Read()
		if err == io.EOF {
			return accounts, rowErrs, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rowErrs = append(rowErrs, RowError{Line: parseErr.Line, Err: err})
				continue
			}
			return nil, nil, fmt.Errorf("failed to read feed: %w", err)
		}
		if blank(record) {
			continue
		}
		line, _ := f.reader.FieldPos(0)
		acc, err := f.toAccount(record)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		accounts = append(accounts, acc)
	}
}

func (f *FeedReader) get(record []string, col string) string {
	i, ok := f.headerMap[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (f *FeedReader) optional(record []string, col string) *string {
	if v := f.get(record, col); v != "" {
		return &v
	}
	return nil
}

func (f *FeedReader) toAccount(record []string) (crm.FinancialAccount, error) {
	id := f.get(record, ColAccountID)
	if id == "" {
		return crm.FinancialAccount{}, fmt.Errorf("%s is required", ColAccountID)
	}

	balance := decimal.Zero
	if raw := strings.ReplaceAll(f.get(record, ColBalance), ",", ""); raw != "" {
		b, err := decimal.NewFromString(raw)
		if err != nil {
			return crm.FinancialAccount{}, fmt.Errorf("invalid %s %q", ColBalance, raw)
		}
		balance = b
	}

	var openDate *time.Time
	if raw := f.get(record, ColOpenDate); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return crm.FinancialAccount{}, fmt.Errorf("invalid %s %q", ColOpenDate, raw)
		}
		openDate = &d
	}

	return crm.FinancialAccount{
		ID:            id,
		Name:          f.get(record, ColAccountName),
		AccountType:   f.get(record, ColAccountType),
		TaxStatus:     f.get(record, ColTaxStatus),
		Balance:       balance,
		HouseholdID:   f.optional(record, ColHouseholdID),
		HouseholdName: f.optional(record, ColHouseholdName),
		OwnerName:     f.optional(record, ColOwnerName),
		Status:        f.get(record, ColStatus),
		OpenDate:      openDate,
	}, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// FilterByHousehold keeps accounts belonging to one of householdIDs. An empty
// list keeps everything.
func FilterByHousehold(accounts []crm.FinancialAccount, householdIDs []string) []crm.FinancialAccount {
	if len(householdIDs) == 0 {
		return accounts
	}
	wanted := make(map[string]struct{}, len(householdIDs))
	for _, id := range householdIDs {
		wanted[id] = struct{}{}
	}
	out := make([]crm.FinancialAccount, 0, len(accounts))
	for _, acc := range accounts {
		if acc.HouseholdID == nil {
			continue
		}
		if _, ok := wanted[*acc.HouseholdID]; ok {
			out = append(out, acc)
		}
	}
	return out
}
