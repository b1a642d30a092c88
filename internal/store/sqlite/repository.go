// Package sqlite persists the ledger in a local SQLite database. Money is
// stored as decimal strings to avoid float drift; timestamps are RFC 3339
// text with the empty string standing in for the zero time.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"paisa/internal/core"
	"paisa/internal/store"
)

type Repository struct {
	db *sql.DB
}

var (
	_ store.Store              = (*Repository)(nil)
	_ store.RecurringRuleStore = (*Repository)(nil)
)

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) InsertPaymentSource(ctx context.Context, src core.PaymentSource) (string, error) {
	if err := src.Validate(); err != nil {
		return "", err
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	apps, err := json.Marshal(src.LinkedApps)
	if err != nil {
		return "", fmt.Errorf("marshal linked apps: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payment_sources (id, name, kind, balance, credit_limit, linked_apps)
		VALUES (?, ?, ?, ?, ?, ?)`,
		src.ID, src.Name, string(src.Kind), src.Balance.String(), src.CreditLimit.String(), string(apps))
	if err != nil {
		return "", fmt.Errorf("insert payment source: %w", err)
	}
	return src.ID, nil
}

func (r *Repository) GetPaymentSource(ctx context.Context, id string) (core.PaymentSource, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, kind, balance, credit_limit, linked_apps
		FROM payment_sources WHERE id = ?`, id)
	return scanSource(row)
}

func (r *Repository) UpdatePaymentSourceBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_sources SET balance = ? WHERE id = ?`, balance.String(), id)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return requireRow(res, core.ErrSourceNotFound)
}

func (r *Repository) UpdatePaymentSource(ctx context.Context, src core.PaymentSource) error {
	if err := src.Validate(); err != nil {
		return err
	}
	apps, err := json.Marshal(src.LinkedApps)
	if err != nil {
		return fmt.Errorf("marshal linked apps: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_sources
		SET name = ?, kind = ?, balance = ?, credit_limit = ?, linked_apps = ?
		WHERE id = ?`,
		src.Name, string(src.Kind), src.Balance.String(), src.CreditLimit.String(), string(apps), src.ID)
	if err != nil {
		return fmt.Errorf("update payment source: %w", err)
	}
	return requireRow(res, core.ErrSourceNotFound)
}

func (r *Repository) ListPaymentSources(ctx context.Context) ([]core.PaymentSource, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, kind, balance, credit_limit, linked_apps
		FROM payment_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list payment sources: %w", err)
	}
	defer rows.Close()

	var out []core.PaymentSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (r *Repository) DeletePaymentSource(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payment_sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete payment source: %w", err)
	}
	return requireRow(res, core.ErrSourceNotFound)
}

const txColumns = `id, kind, amount, category, source_id, display_source_id, description, date,
	status, previous_status, remaining_balance, counterparty, repayment_date,
	reschedule_reason, last_repayment_id, reference_kind, reference_id, audit_trail`

func (r *Repository) InsertTransaction(ctx context.Context, tx core.Transaction) (string, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	trail, err := json.Marshal(tx.AuditTrail)
	if err != nil {
		return "", fmt.Errorf("marshal audit trail: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, string(tx.Kind), tx.Amount.String(), tx.Category, tx.SourceID,
		tx.DisplaySourceID, tx.Description, encodeTime(tx.Date),
		string(tx.Status), string(tx.PreviousStatus), tx.RemainingBalance.String(),
		tx.Counterparty, encodeTime(tx.RepaymentDate), tx.RescheduleReason,
		tx.LastRepaymentID, string(tx.ReferenceKind), tx.ReferenceID, string(trail))
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	return tx.ID, nil
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

func (r *Repository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	trail, err := json.Marshal(tx.AuditTrail)
	if err != nil {
		return fmt.Errorf("marshal audit trail: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET
			kind = ?, amount = ?, category = ?, source_id = ?, display_source_id = ?,
			description = ?, date = ?, status = ?, previous_status = ?,
			remaining_balance = ?, counterparty = ?, repayment_date = ?,
			reschedule_reason = ?, last_repayment_id = ?, reference_kind = ?,
			reference_id = ?, audit_trail = ?
		WHERE id = ?`,
		string(tx.Kind), tx.Amount.String(), tx.Category, tx.SourceID, tx.DisplaySourceID,
		tx.Description, encodeTime(tx.Date), string(tx.Status), string(tx.PreviousStatus),
		tx.RemainingBalance.String(), tx.Counterparty, encodeTime(tx.RepaymentDate),
		tx.RescheduleReason, tx.LastRepaymentID, string(tx.ReferenceKind),
		tx.ReferenceID, string(trail), tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireRow(res, core.ErrTransactionNotFound)
}

func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireRow(res, core.ErrTransactionNotFound)
}

func (r *Repository) QueryTransactions(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE 1=1`
	var args []any
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.SourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, f.SourceID)
	}
	if f.ReferenceKind != "" {
		query += ` AND reference_kind = ?`
		args = append(args, string(f.ReferenceKind))
	}
	if f.ReferenceID != "" {
		query += ` AND reference_id = ?`
		args = append(args, f.ReferenceID)
	}
	if f.OrderByDateDesc {
		query += ` ORDER BY date DESC`
	} else {
		query += ` ORDER BY date ASC`
	}
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *Repository) InsertRecurringRule(ctx context.Context, rule core.RecurringRule) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_rules (id, kind, amount, category, source_id, description, every, start_date, end_date, last_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, string(rule.Kind), rule.Amount.String(), rule.Category, rule.SourceID,
		rule.Description, string(rule.Every), encodeTime(rule.StartDate),
		encodeTime(rule.EndDate), encodeTime(rule.LastRun))
	if err != nil {
		return "", fmt.Errorf("insert recurring rule: %w", err)
	}
	return rule.ID, nil
}

func (r *Repository) ListRecurringRules(ctx context.Context) ([]core.RecurringRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, amount, category, source_id, description, every, start_date, end_date, last_run
		FROM recurring_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringRule
	for rows.Next() {
		var (
			rule                        core.RecurringRule
			kind, amount, every         string
			startDate, endDate, lastRun string
		)
		err := rows.Scan(&rule.ID, &kind, &amount, &rule.Category, &rule.SourceID,
			&rule.Description, &every, &startDate, &endDate, &lastRun)
		if err != nil {
			return nil, fmt.Errorf("scan recurring rule: %w", err)
		}
		rule.Kind = core.TransactionKind(kind)
		rule.Every = core.RepetitionType(every)
		if rule.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse rule amount: %w", err)
		}
		if rule.StartDate, err = decodeTime(startDate); err != nil {
			return nil, err
		}
		if rule.EndDate, err = decodeTime(endDate); err != nil {
			return nil, err
		}
		if rule.LastRun, err = decodeTime(lastRun); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *Repository) MarkRecurringRuleRun(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_rules SET last_run = ? WHERE id = ?`, encodeTime(at), id)
	if err != nil {
		return fmt.Errorf("mark rule run: %w", err)
	}
	return requireRow(res, core.ErrTransactionNotFound)
}

func (r *Repository) DeleteRecurringRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recurring rule: %w", err)
	}
	return requireRow(res, core.ErrTransactionNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (core.PaymentSource, error) {
	var (
		src                        core.PaymentSource
		kind, balance, limit, apps string
	)
	err := row.Scan(&src.ID, &src.Name, &kind, &balance, &limit, &apps)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PaymentSource{}, core.ErrSourceNotFound
	}
	if err != nil {
		return core.PaymentSource{}, fmt.Errorf("scan payment source: %w", err)
	}
	src.Kind = core.SourceKind(kind)
	if src.Balance, err = decimal.NewFromString(balance); err != nil {
		return core.PaymentSource{}, fmt.Errorf("parse balance: %w", err)
	}
	if src.CreditLimit, err = decimal.NewFromString(limit); err != nil {
		return core.PaymentSource{}, fmt.Errorf("parse credit limit: %w", err)
	}
	if err := json.Unmarshal([]byte(apps), &src.LinkedApps); err != nil {
		return core.PaymentSource{}, fmt.Errorf("parse linked apps: %w", err)
	}
	return src, nil
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		tx                          core.Transaction
		kind, amount, remaining     string
		status, prevStatus, refKind string
		date, repaymentDate, trail  string
	)
	err := row.Scan(&tx.ID, &kind, &amount, &tx.Category, &tx.SourceID,
		&tx.DisplaySourceID, &tx.Description, &date,
		&status, &prevStatus, &remaining, &tx.Counterparty, &repaymentDate,
		&tx.RescheduleReason, &tx.LastRepaymentID, &refKind, &tx.ReferenceID, &trail)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	tx.Kind = core.TransactionKind(kind)
	tx.Status = core.DueStatus(status)
	tx.PreviousStatus = core.DueStatus(prevStatus)
	tx.ReferenceKind = core.ReferenceKind(refKind)
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount: %w", err)
	}
	if tx.RemainingBalance, err = decimal.NewFromString(remaining); err != nil {
		return core.Transaction{}, fmt.Errorf("parse remaining balance: %w", err)
	}
	if tx.Date, err = decodeTime(date); err != nil {
		return core.Transaction{}, err
	}
	if tx.RepaymentDate, err = decodeTime(repaymentDate); err != nil {
		return core.Transaction{}, err
	}
	if err := json.Unmarshal([]byte(trail), &tx.AuditTrail); err != nil {
		return core.Transaction{}, fmt.Errorf("parse audit trail: %w", err)
	}
	return tx, nil
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
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
