package budget_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
)

func TestConfigValidate(t *testing.T) {
	ok := budget.Config{DailyLimit: budget.Limit(10), ProjectLimit: budget.Limit(0)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	bad := budget.Config{MonthlyLimit: budget.Limit(-1)}
	if err := bad.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestParsePeriod(t *testing.T) {
	if p, err := budget.ParsePeriod("daily"); err != nil || p != budget.PeriodDaily {
		t.Fatalf("ParsePeriod(daily) = %q, %v", p, err)
	}
	if _, err := budget.ParsePeriod("weekly"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestExceededErrorMessage(t *testing.T) {
	err := &budget.ExceededError{
		Scope: "p1",
		Breaches: []budget.Breach{
			{Kind: budget.LimitDaily, Limit: 10, Current: 5, Estimated: 6, Available: 5},
		},
	}
	msg := err.Error()
	for _, want := range []string{"p1", "daily", "estimated 6.000000", "available 5.000000"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}
