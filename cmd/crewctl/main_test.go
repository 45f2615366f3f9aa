package main

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/orchestration"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

func TestParsePairs(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, nil, false},
		{"pairs", []string{"a=1", " b = two "}, map[string]string{"a": "1", "b": "two"}, false},
		{"value keeps equals", []string{"q=x=y"}, map[string]string{"q": "x=y"}, false},
		{"missing separator", []string{"oops"}, nil, true},
		{"empty value", []string{"a="}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePairs(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlanCommandJSON(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"plan", "--json", "--tier", crew.CaptainPicard + "=BUDGET", "anything"})
	t.Cleanup(func() {
		jsonOutput = false
		planTiers = nil
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	var res orchestration.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if !res.Overridden || res.LLMAssignments[crew.CaptainPicard] != tier.Budget {
		t.Errorf("result = %+v", res)
	}
	if want := tier.FallbackCostDatabase().UnitCost(tier.Budget); res.EstimatedCost != want {
		t.Errorf("estimated = %v, want %v", res.EstimatedCost, want)
	}
}
