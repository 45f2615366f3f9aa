// Command crewctl runs the analyzer and optimizer locally and prints the
// resulting crew plans. It needs no server, database or API key.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	crewconfigadapter "github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/crewconfig"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/service"
)

var version = "dev"

var (
	costDBPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "crewctl",
	Short: "Plan crew activations and cost tiers offline",
	Long: `crewctl classifies a request the way the crew service does, selects
the crew members to activate and assigns each a cost tier, then prints the
estimated cost against an all-premium baseline.

Prices come from the built-in table unless --cost-db points at a cost
database JSON file.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "crewctl version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&costDBPath, "cost-db", "", "path to a cost database JSON file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(rosterCmd)
	rootCmd.AddCommand(pricesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// pipeline holds the in-process services a command needs.
type pipeline struct {
	registry     *crew.Registry
	costs        *tier.CostDatabase
	analyzer     *service.AnalyzerService
	optimizer    *service.OptimizerService
	orchestrator *service.OrchestratorService
}

func newPipeline() (*pipeline, error) {
	costs, err := crewconfigadapter.LoadCostDatabase(costDBPath)
	if err != nil {
		return nil, err
	}
	reg := crew.DefaultRegistry()
	p := &pipeline{
		registry:  reg,
		costs:     costs,
		analyzer:  service.NewAnalyzerService(reg),
		optimizer: service.NewOptimizerService(costs, reg.Rules()),
	}
	p.orchestrator = service.NewOrchestratorService(reg, p.analyzer, p.optimizer, nil)
	return p, nil
}

// parsePairs turns repeated key=value flags into a map.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	heading = color.New(color.Bold, color.FgCyan)
	dim     = color.New(color.Faint)
)

func tierColor(t tier.CostTier) *color.Color {
	switch t {
	case tier.Premium:
		return color.New(color.FgRed)
	case tier.Standard:
		return color.New(color.FgYellow)
	case tier.Budget:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgBlue)
	}
}

func complexityColor(c tier.Complexity) *color.Color {
	switch c {
	case tier.Critical:
		return color.New(color.Bold, color.FgRed)
	case tier.Important:
		return color.New(color.FgYellow)
	case tier.Routine:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgBlue)
	}
}
