package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/dogquery/pkg/fetchpolicy"
)

func newDecideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Evaluate a next-fetch-policy strategy",
		Example: `  dogs decide --strategy narrow-after-change --policy network-only --reason variables-changed
  dogs decide --strategy pass-through --table`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := cmd.Flags()
			name, _ := f.GetString("strategy")
			d, err := fetchpolicy.ParseStrategy(name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if table, _ := f.GetBool("table"); table {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "CURRENT\t%s\t%s\n", fetchpolicy.AfterFetch, fetchpolicy.VariablesChanged)
				for _, p := range fetchpolicy.All() {
					af := fetchpolicy.Decide(d, p, fetchpolicy.Context{Reason: fetchpolicy.AfterFetch}, nil)
					vc := fetchpolicy.Decide(d, p, fetchpolicy.Context{Reason: fetchpolicy.VariablesChanged}, nil)
					fmt.Fprintf(tw, "%s\t%s\t%s\n", p, af, vc)
				}
				return tw.Flush()
			}

			ps, _ := f.GetString("policy")
			p, err := fetchpolicy.ParsePolicy(ps)
			if err != nil {
				return err
			}
			reason, _ := f.GetString("reason")
			next := fetchpolicy.Decide(d, p, fetchpolicy.Context{Reason: fetchpolicy.Reason(reason)}, nil)
			fmt.Fprintln(out, next)
			return nil
		},
	}
	cmd.Flags().String("strategy", fetchpolicy.StrategyNarrowAfterChange, "Strategy (pass-through|narrow-after-change|pin:<policy>)")
	cmd.Flags().String("policy", fetchpolicy.NetworkOnly.String(), "Current fetch policy")
	cmd.Flags().String("reason", string(fetchpolicy.VariablesChanged), "Why the decision is asked (after-fetch|variables-changed)")
	cmd.Flags().Bool("table", false, "Print the decision for every policy and reason")
	return cmd
}
