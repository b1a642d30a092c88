package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"paisa/internal/core"
	"paisa/internal/store"
)

// RecurringProcessor materializes transactions from recurring rules. Rules
// are ordinary callers of the ledger service, so each fired rule moves the
// source balance the same way a hand-entered transaction would.
type RecurringProcessor struct {
	rules   store.RecurringRuleStore
	service *LedgerService
}

func NewRecurringProcessor(rules store.RecurringRuleStore, service *LedgerService) *RecurringProcessor {
	return &RecurringProcessor{rules: rules, service: service}
}

// ProcessDueRules fires every active rule whose schedule has come due and
// returns the number of transactions created. One failing rule does not stop
// the rest.
func (p *RecurringProcessor) ProcessDueRules(ctx context.Context, now time.Time) (int, error) {
	if p.rules == nil || p.service == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	rules, err := p.rules.ListRecurringRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recurring rules: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring rules",
		"total", len(rules),
		"processing_date", now.Format("2006-01-02"))

	processed := 0
	for _, rule := range rules {
		if !rule.Active(now) {
			continue
		}

		due, err := p.isDue(rule, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to check rule dueness",
				"rule_id", rule.ID,
				"error", err)
			continue
		}
		if !due {
			continue
		}

		tx := core.Transaction{
			Kind:            rule.Kind,
			Amount:          rule.Amount,
			Category:        rule.Category,
			DisplaySourceID: rule.SourceID,
			Description:     rule.Description,
			Date:            now.UTC(),
		}
		created, err := p.service.AddTransaction(ctx, tx)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to create transaction from rule",
				"rule_id", rule.ID,
				"description", rule.Description,
				"error", err)
			continue
		}

		if err := p.rules.MarkRecurringRuleRun(ctx, rule.ID, now); err != nil {
			// The transaction exists; the rule will fire again next cycle.
			slog.ErrorContext(ctx, "Failed to record rule run",
				"rule_id", rule.ID,
				"error", err)
		}

		processed++
		slog.InfoContext(ctx, "Created transaction from recurring rule",
			"rule_id", rule.ID,
			"transaction_id", created.ID,
			"amount", rule.Amount.String(),
			"frequency", rule.Every)
	}

	slog.InfoContext(ctx, "Recurring rule processing complete",
		"processed", processed,
		"total_checked", len(rules))
	return processed, nil
}

func (p *RecurringProcessor) isDue(rule core.RecurringRule, now time.Time) (bool, error) {
	checker, err := GetDuenessChecker(rule.Every)
	if err != nil {
		return false, err
	}
	return checker.IsDue(rule.LastRun, now, rule.StartDate), nil
}
