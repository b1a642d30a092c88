// Package memory is an in-process implementation of the store ports. It backs
// tests and the default backend, mirroring the remote row store's contract:
// per-row operations only, no cross-row atomicity.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paisa/internal/core"
	"paisa/internal/store"
)

type Store struct {
	mu      sync.Mutex
	sources map[string]core.PaymentSource
	txs     map[string]core.Transaction
	rules   map[string]core.RecurringRule
}

var (
	_ store.Store              = (*Store)(nil)
	_ store.RecurringRuleStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		sources: make(map[string]core.PaymentSource),
		txs:     make(map[string]core.Transaction),
		rules:   make(map[string]core.RecurringRule),
	}
}

func (s *Store) InsertPaymentSource(_ context.Context, src core.PaymentSource) (string, error) {
	if err := src.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	s.sources[src.ID] = copySource(src)
	return src.ID, nil
}

func (s *Store) GetPaymentSource(_ context.Context, id string) (core.PaymentSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return core.PaymentSource{}, core.ErrSourceNotFound
	}
	return copySource(src), nil
}

func (s *Store) UpdatePaymentSourceBalance(_ context.Context, id string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return core.ErrSourceNotFound
	}
	src.Balance = balance
	s.sources[id] = src
	return nil
}

func (s *Store) UpdatePaymentSource(_ context.Context, src core.PaymentSource) error {
	if err := src.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[src.ID]; !ok {
		return core.ErrSourceNotFound
	}
	s.sources[src.ID] = copySource(src)
	return nil
}

func (s *Store) ListPaymentSources(_ context.Context) ([]core.PaymentSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.PaymentSource, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, copySource(src))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeletePaymentSource(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[id]; !ok {
		return core.ErrSourceNotFound
	}
	delete(s.sources, id)
	return nil
}

func (s *Store) InsertTransaction(_ context.Context, tx core.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	s.txs[tx.ID] = copyTx(tx)
	return tx.ID, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, core.ErrTransactionNotFound
	}
	return copyTx(tx), nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.ID]; !ok {
		return core.ErrTransactionNotFound
	}
	s.txs[tx.ID] = copyTx(tx)
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return core.ErrTransactionNotFound
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) QueryTransactions(_ context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if f.Matches(tx) {
			out = append(out, copyTx(tx))
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

func (s *Store) InsertRecurringRule(_ context.Context, rule core.RecurringRule) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	s.rules[rule.ID] = rule
	return rule.ID, nil
}

func (s *Store) ListRecurringRules(_ context.Context) ([]core.RecurringRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RecurringRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkRecurringRuleRun(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return core.ErrTransactionNotFound
	}
	rule.LastRun = at
	s.rules[id] = rule
	return nil
}

func (s *Store) DeleteRecurringRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return core.ErrTransactionNotFound
	}
	delete(s.rules, id)
	return nil
}

func copySource(src core.PaymentSource) core.PaymentSource {
	src.LinkedApps = append([]string(nil), src.LinkedApps...)
	return src
}

func copyTx(tx core.Transaction) core.Transaction {
	tx.AuditTrail = append([]core.AuditEntry(nil), tx.AuditTrail...)
	return tx
}
