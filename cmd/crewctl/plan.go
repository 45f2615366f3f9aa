package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/orchestration"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

var (
	analyzeHints []string
	planHints    []string
	planTiers    []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <request>",
	Short: "Classify a request and recommend crew members",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hints, err := parsePairs(analyzeHints)
		if err != nil {
			return err
		}
		p, err := newPipeline()
		if err != nil {
			return err
		}
		analysis := p.analyzer.Analyze(strings.Join(args, " "), hints)
		if jsonOutput {
			return printJSON(cmd, analysis)
		}
		printAnalysis(cmd.OutOrStdout(), analysis)
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <request>",
	Short: "Select crew and cost tiers for a request and estimate its cost",
	Long: `Runs the full orchestration: analysis, crew selection and per-member
tier assignment. Repeat --tier id=tier to bypass the analysis with an
explicit assignment.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hints, err := parsePairs(planHints)
		if err != nil {
			return err
		}
		raw, err := parsePairs(planTiers)
		if err != nil {
			return err
		}
		var override map[string]tier.CostTier
		if len(raw) > 0 {
			override = make(map[string]tier.CostTier, len(raw))
			for id, v := range raw {
				t, err := tier.ParseCostTier(strings.ToLower(v))
				if err != nil {
					return err
				}
				override[id] = t
			}
		}

		p, err := newPipeline()
		if err != nil {
			return err
		}
		res, err := p.orchestrator.Orchestrate(cmd.Context(), orchestration.Request{
			UserRequest:  strings.Join(args, " "),
			Context:      hints,
			TierOverride: override,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, res)
		}
		printPlan(cmd.OutOrStdout(), p, res)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringArrayVar(&analyzeHints, "hint", nil, "context hint as key=value (repeatable)")
	planCmd.Flags().StringArrayVar(&planHints, "hint", nil, "context hint as key=value (repeatable)")
	planCmd.Flags().StringArrayVar(&planTiers, "tier", nil, "explicit assignment as crew_id=tier (repeatable)")
}

func printAnalysis(w io.Writer, a orchestration.TaskAnalysis) {
	heading.Fprintln(w, "Analysis")
	fmt.Fprintf(w, "  complexity: %s", complexityColor(a.Complexity).Sprint(a.Complexity))
	if a.MatchedKeyword != "" {
		dim.Fprintf(w, " (matched %q)", a.MatchedKeyword)
	}
	fmt.Fprintln(w)
	expertise := make([]string, len(a.RequiredExpertise))
	for i, e := range a.RequiredExpertise {
		expertise[i] = string(e)
	}
	fmt.Fprintf(w, "  expertise:  %s\n", strings.Join(expertise, ", "))
	fmt.Fprintf(w, "  crew:       %s\n", strings.Join(a.RecommendedCrew, ", "))
	dim.Fprintf(w, "  %s\n", a.Reasoning)
}

func printPlan(w io.Writer, p *pipeline, res *orchestration.Result) {
	if res.Overridden {
		heading.Fprintln(w, "Plan (explicit tiers)")
	} else {
		printAnalysis(w, res.Analysis)
		fmt.Fprintln(w)
		heading.Fprintln(w, "Plan")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "  MEMBER\tTIER\tMODEL\tCOST")
	for _, id := range res.ActivatedCrew {
		t := res.LLMAssignments[id]
		name := id
		if m, ok := p.registry.Get(id); ok {
			name = m.DisplayName
		}
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\t$%.6f\n",
			name, tierColor(t).Sprint(t), p.costs.ModelFor(t), p.costs.UnitCost(t))
	}
	_ = tw.Flush()

	roi := res.ROI
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  estimated: $%.6f\n", res.EstimatedCost)
	fmt.Fprintf(w, "  baseline:  $%.6f (all premium)\n", roi.BaselineCost)
	fmt.Fprintf(w, "  savings:   %s\n",
		tierColor(tier.Budget).Sprintf("$%.6f (%.1f%%)", roi.Savings, roi.SavingsPercentage))
	dim.Fprintf(w, "  %s\n", res.Reasoning)
}

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "List the crew members in registry order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		members := p.registry.Members()
		if jsonOutput {
			return printJSON(cmd, members)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tROLE\tTIER\tCAPACITY\tEXPERTISE")
		for i := range members {
			m := &members[i]
			expertise := make([]string, len(m.Expertise))
			for j, e := range m.Expertise {
				expertise[j] = string(e)
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
				m.ID, m.DisplayName, m.Role, tierColor(m.CostTier).Sprint(m.CostTier), m.Capacity, strings.Join(expertise, ","))
		}
		return tw.Flush()
	},
}

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Print the cost database in effect",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, p.costs)
		}
		w := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "TIER\tMODEL\tCOST/REQUEST")
		for _, t := range tier.All {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t$%.6f\n", tierColor(t).Sprint(t), p.costs.ModelFor(t), p.costs.UnitCost(t))
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		models := p.costs.Models()
		if len(models) == 0 {
			return nil
		}
		sort.Strings(models)
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "MODEL\tINPUT/M\tOUTPUT/M")
		for _, m := range models {
			pr, _ := p.costs.PricingFor(m)
			_, _ = fmt.Fprintf(tw, "%s\t$%.2f\t$%.2f\n", m, pr.InputPerMillion, pr.OutputPerMillion)
		}
		return tw.Flush()
	},
}
