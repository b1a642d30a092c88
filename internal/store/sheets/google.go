// Package sheets implements the store ports on top of a Google Sheets
// spreadsheet. Every row carries its id in column A; lookups scan the id
// column, updates rewrite the row in place, and deletes clear it. The
// spreadsheet is a plain row store: no transactions, no server-side filters,
// which is exactly the contract the ledger engine compensates around.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"paisa/internal/core"
	"paisa/internal/store"
)

const (
	defaultSourcesSheet      = "Sources"
	defaultTransactionsSheet = "Transactions"

	sourceColumns      = 6  // A:F
	transactionColumns = 18 // A:R
)

type Config struct {
	SpreadsheetID     string
	CredentialsJSON   string // inline service-account JSON, wins over the file
	CredentialsFile   string
	SourcesSheet      string
	TransactionsSheet string
}

type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	sourcesSheet      string
	transactionsSheet string
}

var _ store.Store = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	credentials, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	sources := cfg.SourcesSheet
	if sources == "" {
		sources = defaultSourcesSheet
	}
	transactions := cfg.TransactionsSheet
	if transactions == "" {
		transactions = defaultTransactionsSheet
	}

	return &Client{
		svc:               svc,
		spreadsheetID:     cfg.SpreadsheetID,
		sourcesSheet:      sources,
		transactionsSheet: transactions,
	}, nil
}

func loadCredentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials")
	}
}

func (c *Client) InsertPaymentSource(ctx context.Context, src core.PaymentSource) (string, error) {
	if err := src.Validate(); err != nil {
		return "", err
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	row, err := sourceToRow(src)
	if err != nil {
		return "", err
	}
	if err := c.appendRow(ctx, c.sourcesSheet, row); err != nil {
		return "", err
	}
	return src.ID, nil
}

func (c *Client) GetPaymentSource(ctx context.Context, id string) (core.PaymentSource, error) {
	_, row, err := c.findRow(ctx, c.sourcesSheet, sourceColumns, id)
	if err != nil {
		return core.PaymentSource{}, err
	}
	if row == nil {
		return core.PaymentSource{}, core.ErrSourceNotFound
	}
	return sourceFromRow(row)
}

func (c *Client) UpdatePaymentSourceBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	src, err := c.GetPaymentSource(ctx, id)
	if err != nil {
		return err
	}
	src.Balance = balance
	return c.UpdatePaymentSource(ctx, src)
}

func (c *Client) UpdatePaymentSource(ctx context.Context, src core.PaymentSource) error {
	if err := src.Validate(); err != nil {
		return err
	}
	rowNum, existing, err := c.findRow(ctx, c.sourcesSheet, sourceColumns, src.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return core.ErrSourceNotFound
	}
	row, err := sourceToRow(src)
	if err != nil {
		return err
	}
	return c.updateRow(ctx, c.sourcesSheet, rowNum, sourceColumns, row)
}

func (c *Client) ListPaymentSources(ctx context.Context) ([]core.PaymentSource, error) {
	rows, err := c.readRows(ctx, c.sourcesSheet, sourceColumns)
	if err != nil {
		return nil, err
	}
	var out []core.PaymentSource
	for _, row := range rows {
		src, err := sourceFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Client) DeletePaymentSource(ctx context.Context, id string) error {
	rowNum, row, err := c.findRow(ctx, c.sourcesSheet, sourceColumns, id)
	if err != nil {
		return err
	}
	if row == nil {
		return core.ErrSourceNotFound
	}
	return c.clearRow(ctx, c.sourcesSheet, rowNum, sourceColumns)
}

func (c *Client) InsertTransaction(ctx context.Context, tx core.Transaction) (string, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	row, err := transactionToRow(tx)
	if err != nil {
		return "", err
	}
	if err := c.appendRow(ctx, c.transactionsSheet, row); err != nil {
		return "", err
	}
	return tx.ID, nil
}

func (c *Client) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	_, row, err := c.findRow(ctx, c.transactionsSheet, transactionColumns, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if row == nil {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	return transactionFromRow(row)
}

func (c *Client) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	rowNum, existing, err := c.findRow(ctx, c.transactionsSheet, transactionColumns, tx.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return core.ErrTransactionNotFound
	}
	row, err := transactionToRow(tx)
	if err != nil {
		return err
	}
	return c.updateRow(ctx, c.transactionsSheet, rowNum, transactionColumns, row)
}

// UpsertTransaction writes the row in place when it exists and appends it
// otherwise. The mirror worker replays upsert events through this.
func (c *Client) UpsertTransaction(ctx context.Context, tx core.Transaction) error {
	err := c.UpdateTransaction(ctx, tx)
	if errors.Is(err, core.ErrTransactionNotFound) {
		_, err = c.InsertTransaction(ctx, tx)
	}
	return err
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	rowNum, row, err := c.findRow(ctx, c.transactionsSheet, transactionColumns, id)
	if err != nil {
		return err
	}
	if row == nil {
		return core.ErrTransactionNotFound
	}
	return c.clearRow(ctx, c.transactionsSheet, rowNum, transactionColumns)
}

func (c *Client) QueryTransactions(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	rows, err := c.readRows(ctx, c.transactionsSheet, transactionColumns)
	if err != nil {
		return nil, err
	}
	var out []core.Transaction
	for _, row := range rows {
		tx, err := transactionFromRow(row)
		if err != nil {
			return nil, err
		}
		if f.Matches(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if f.OrderByDateDesc {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Date.Before(out[j].Date)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// appendRow adds the row after the last non-empty one.
func (c *Client) appendRow(ctx context.Context, sheet string, row []any) error {
	rng := fmt.Sprintf("%s!A:%s", sheet, columnLetter(len(row)))
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng,
		&gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", sheet, err)
	}
	return nil
}

func (c *Client) updateRow(ctx context.Context, sheet string, rowNum, cols int, row []any) error {
	rng := fmt.Sprintf("%s!A%d:%s%d", sheet, rowNum, columnLetter(cols), rowNum)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng,
		&gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// clearRow blanks the row; cleared rows are skipped on read.
func (c *Client) clearRow(ctx context.Context, sheet string, rowNum, cols int) error {
	rng := fmt.Sprintf("%s!A%d:%s%d", sheet, rowNum, columnLetter(cols), rowNum)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

// findRow scans column A for the id. Returns the 1-based row number and the
// full row, or a nil row when the id is absent.
func (c *Client) findRow(ctx context.Context, sheet string, cols int, id string) (int, []string, error) {
	rows, err := c.readRawRows(ctx, sheet, cols)
	if err != nil {
		return 0, nil, err
	}
	for i, row := range rows {
		if len(row) > 0 && row[0] == id {
			return i + 1, row, nil
		}
	}
	return 0, nil, nil
}

// readRows returns all non-empty data rows, skipping cleared ones.
func (c *Client) readRows(ctx context.Context, sheet string, cols int) ([][]string, error) {
	raw, err := c.readRawRows(ctx, sheet, cols)
	if err != nil {
		return nil, err
	}
	var out [][]string
	for _, row := range raw {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (c *Client) readRawRows(ctx context.Context, sheet string, cols int) ([][]string, error) {
	rng := fmt.Sprintf("%s!A:%s", sheet, columnLetter(cols))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, cols)
		for j := 0; j < cols && j < len(row); j++ {
			cells[j] = strings.TrimSpace(fmt.Sprint(row[j]))
		}
		out[i] = cells
	}
	return out, nil
}

func columnLetter(n int) string {
	return string(rune('A' + n - 1))
}

func sourceToRow(src core.PaymentSource) ([]any, error) {
	apps, err := json.Marshal(src.LinkedApps)
	if err != nil {
		return nil, fmt.Errorf("marshal linked apps: %w", err)
	}
	return []any{
		src.ID, src.Name, string(src.Kind),
		src.Balance.String(), src.CreditLimit.String(), string(apps),
	}, nil
}

func sourceFromRow(row []string) (core.PaymentSource, error) {
	var (
		src core.PaymentSource
		err error
	)
	src.ID = row[0]
	src.Name = row[1]
	src.Kind = core.SourceKind(row[2])
	if src.Balance, err = parseDecimalCell(row[3]); err != nil {
		return core.PaymentSource{}, err
	}
	if src.CreditLimit, err = parseDecimalCell(row[4]); err != nil {
		return core.PaymentSource{}, err
	}
	if row[5] != "" {
		if err := json.Unmarshal([]byte(row[5]), &src.LinkedApps); err != nil {
			return core.PaymentSource{}, fmt.Errorf("parse linked apps: %w", err)
		}
	}
	return src, nil
}

func transactionToRow(tx core.Transaction) ([]any, error) {
	trail, err := json.Marshal(tx.AuditTrail)
	if err != nil {
		return nil, fmt.Errorf("marshal audit trail: %w", err)
	}
	return []any{
		tx.ID, string(tx.Kind), tx.Amount.String(), tx.Category,
		tx.SourceID, tx.DisplaySourceID, tx.Description, encodeTime(tx.Date),
		string(tx.Status), string(tx.PreviousStatus), tx.RemainingBalance.String(),
		tx.Counterparty, encodeTime(tx.RepaymentDate), tx.RescheduleReason,
		tx.LastRepaymentID, string(tx.ReferenceKind), tx.ReferenceID, string(trail),
	}, nil
}

func transactionFromRow(row []string) (core.Transaction, error) {
	var (
		tx  core.Transaction
		err error
	)
	tx.ID = row[0]
	tx.Kind = core.TransactionKind(row[1])
	if tx.Amount, err = parseDecimalCell(row[2]); err != nil {
		return core.Transaction{}, err
	}
	tx.Category = row[3]
	tx.SourceID = row[4]
	tx.DisplaySourceID = row[5]
	tx.Description = row[6]
	if tx.Date, err = decodeTime(row[7]); err != nil {
		return core.Transaction{}, err
	}
	tx.Status = core.DueStatus(row[8])
	tx.PreviousStatus = core.DueStatus(row[9])
	if tx.RemainingBalance, err = parseDecimalCell(row[10]); err != nil {
		return core.Transaction{}, err
	}
	tx.Counterparty = row[11]
	if tx.RepaymentDate, err = decodeTime(row[12]); err != nil {
		return core.Transaction{}, err
	}
	tx.RescheduleReason = row[13]
	tx.LastRepaymentID = row[14]
	tx.ReferenceKind = core.ReferenceKind(row[15])
	tx.ReferenceID = row[16]
	if row[17] != "" {
		if err := json.Unmarshal([]byte(row[17]), &tx.AuditTrail); err != nil {
			return core.Transaction{}, fmt.Errorf("parse audit trail: %w", err)
		}
	}
	return tx, nil
}

func parseDecimalCell(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	// Sheets may render decimals with a comma depending on locale.
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
