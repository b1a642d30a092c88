package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"paisa/internal/core"
	"paisa/internal/store"
)

func TestProcessDueRulesCreatesTransactions(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	id := env.newBank(t, "Checking", "1000")
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	if _, err := env.store.InsertRecurringRule(ctx, core.RecurringRule{
		Kind:        core.Expense,
		Amount:      decimal.RequireFromString("15"),
		Category:    "Subscriptions",
		SourceID:    id,
		Description: "music streaming",
		Every:       core.Monthly,
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("insert rule: %v", err)
	}

	processor := NewRecurringProcessor(env.store, env.service)
	processed, err := processor.ProcessDueRules(ctx, now)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	src, _ := env.service.GetSource(ctx, id)
	if !src.Balance.Equal(decimal.RequireFromString("985")) {
		t.Errorf("balance = %s, want 985", src.Balance)
	}

	txs, err := env.service.ListTransactions(ctx, store.TransactionFilter{Kind: core.Expense})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 || txs[0].Description != "music streaming" {
		t.Fatalf("transactions = %+v", txs)
	}

	// The rule just ran; a second pass in the same month is a no-op.
	processed, err = processor.ProcessDueRules(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if processed != 0 {
		t.Errorf("second pass processed = %d, want 0", processed)
	}
}

func TestProcessDueRulesSkipsInactive(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	id := env.newBank(t, "Checking", "1000")
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	// Not started yet.
	if _, err := env.store.InsertRecurringRule(ctx, core.RecurringRule{
		Kind: core.Expense, Amount: decimal.RequireFromString("10"), SourceID: id,
		Every: core.Daily, StartDate: now.AddDate(0, 1, 0),
	}); err != nil {
		t.Fatalf("insert rule: %v", err)
	}
	// Expired.
	if _, err := env.store.InsertRecurringRule(ctx, core.RecurringRule{
		Kind: core.Expense, Amount: decimal.RequireFromString("10"), SourceID: id,
		Every:     core.Daily,
		StartDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("insert rule: %v", err)
	}

	processor := NewRecurringProcessor(env.store, env.service)
	processed, err := processor.ProcessDueRules(ctx, now)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed != 0 {
		t.Errorf("processed = %d, want 0", processed)
	}
	if src, _ := env.service.GetSource(ctx, id); !src.Balance.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("balance = %s, want untouched", src.Balance)
	}
}

func TestProcessDueRulesContinuesPastFailures(t *testing.T) {
	env := newServiceEnv()
	ctx := context.Background()
	id := env.newBank(t, "Checking", "100")
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Overdraws the bank source and fails.
	if _, err := env.store.InsertRecurringRule(ctx, core.RecurringRule{
		Kind: core.Expense, Amount: decimal.RequireFromString("500"), SourceID: id,
		Every: core.Daily, StartDate: start,
	}); err != nil {
		t.Fatalf("insert rule: %v", err)
	}
	if _, err := env.store.InsertRecurringRule(ctx, core.RecurringRule{
		Kind: core.Income, Amount: decimal.RequireFromString("40"), SourceID: id,
		Every: core.Daily, StartDate: start,
	}); err != nil {
		t.Fatalf("insert rule: %v", err)
	}

	processor := NewRecurringProcessor(env.store, env.service)
	processed, err := processor.ProcessDueRules(ctx, now)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want the income rule only", processed)
	}
	if src, _ := env.service.GetSource(ctx, id); !src.Balance.Equal(decimal.RequireFromString("140")) {
		t.Errorf("balance = %s, want 140", src.Balance)
	}
}

func TestProcessorRequiresDependencies(t *testing.T) {
	p := NewRecurringProcessor(nil, nil)
	if _, err := p.ProcessDueRules(context.Background(), time.Now()); err == nil {
		t.Error("uninitialized processor should error")
	}
}
