package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fpl-squad-mcp/internal/advisor"
	"fpl-squad-mcp/internal/fetch"
	"fpl-squad-mcp/internal/store"
)

type ruleFlags struct {
	budget        string
	maxPerGroup   int
	forcedInclude []int
	forcedExclude []int
}

func (r *ruleFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.budget, "budget", "", "Budget ceiling, e.g. 100.0 (overrides config)")
	cmd.Flags().IntVar(&r.maxPerGroup, "max-per-club", 0, "Max members per club (overrides config)")
	cmd.Flags().IntSliceVar(&r.forcedInclude, "include", nil, "Ids that must be selected")
	cmd.Flags().IntSliceVar(&r.forcedExclude, "exclude", nil, "Ids that must not be selected")
}

func (r *ruleFlags) overrides() advisor.RuleOverrides {
	return advisor.RuleOverrides{
		Budget:        r.budget,
		MaxPerGroup:   r.maxPerGroup,
		ForcedInclude: r.forcedInclude,
		ForcedExclude: r.forcedExclude,
	}
}

type rosterFlags struct {
	squad string
	ids   []int
}

func (r *rosterFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.squad, "squad", "", "Saved squad name")
	cmd.Flags().IntSliceVar(&r.ids, "ids", nil, "Roster ids (instead of --squad)")
}

func (r *rosterFlags) roster() advisor.Roster {
	return advisor.Roster{Squad: r.squad, IDs: r.ids}
}

func (c *cli) optimizeCmd() *cobra.Command {
	var rules ruleFlags
	var saveAs string
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Pick the highest predicted-value squad",
		Example: `  fplopt optimize --budget 98.5 --include 351 --exclude 12
  fplopt optimize --gw 7 --save-as wildcard`,
		RunE: func(cmd *cobra.Command, args []string) error {
			adv, err := c.newAdvisor()
			if err != nil {
				return err
			}
			res, err := adv.Optimize(commandContext(cmd), advisor.OptimizeRequest{
				GW: c.gw, Rules: rules.overrides(), SaveAs: saveAs,
			})
			if err != nil {
				return err
			}
			return c.emit(cmd.OutOrStdout(), adv, "optimize", res)
		},
	}
	rules.add(cmd)
	cmd.Flags().StringVar(&saveAs, "save-as", "", "Save the squad as squad/<name>.json")
	return cmd
}

func (c *cli) transfersCmd() *cobra.Command {
	var (
		rules        ruleFlags
		roster       rosterFlags
		extraBudget  string
		maxTransfers int
	)
	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "Plan up to --max swaps from an existing squad",
		RunE: func(cmd *cobra.Command, args []string) error {
			adv, err := c.newAdvisor()
			if err != nil {
				return err
			}
			res, err := adv.Transfers(commandContext(cmd), advisor.TransferRequest{
				GW:                c.gw,
				Roster:            roster.roster(),
				IncrementalBudget: extraBudget,
				MaxTransfers:      maxTransfers,
				Rules:             rules.overrides(),
			})
			if err != nil {
				return err
			}
			return c.emit(cmd.OutOrStdout(), adv, "transfers", res)
		},
	}
	rules.add(cmd)
	roster.add(cmd)
	cmd.Flags().StringVar(&extraBudget, "extra", "0", "Extra money the swaps may cost in total")
	cmd.Flags().IntVar(&maxTransfers, "max", 1, "Max swaps")
	return cmd
}

func (c *cli) captainCmd() *cobra.Command {
	var roster rosterFlags
	cmd := &cobra.Command{
		Use:     "captain [name]",
		Short:   "Rank captaincy candidates from captaincy/<name>.json",
		Example: `  fplopt captain gw7 --squad mine`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adv, err := c.newAdvisor()
			if err != nil {
				return err
			}
			res, err := adv.Captain(advisor.CaptainRequest{Source: args[0], Roster: roster.roster()})
			if err != nil {
				return err
			}
			return c.emit(cmd.OutOrStdout(), adv, "captain", res)
		},
	}
	roster.add(cmd)
	return cmd
}

func (c *cli) validateCmd() *cobra.Command {
	var (
		rules   ruleFlags
		roster  rosterFlags
		partial bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "List every rule a selection breaks",
		RunE: func(cmd *cobra.Command, args []string) error {
			adv, err := c.newAdvisor()
			if err != nil {
				return err
			}
			res, err := adv.Validate(advisor.ValidateRequest{
				GW: c.gw, Roster: roster.roster(), Partial: partial, Rules: rules.overrides(),
			})
			if err != nil {
				return err
			}
			if err := c.emit(cmd.OutOrStdout(), adv, "validate", res); err != nil {
				return err
			}
			if !res.Valid {
				return fmt.Errorf("selection breaks %d rule(s)", len(res.Violations))
			}
			return nil
		},
	}
	rules.add(cmd)
	roster.add(cmd)
	cmd.Flags().BoolVar(&partial, "partial", false, "Check a partial selection")
	return cmd
}

func (c *cli) lineupCmd() *cobra.Command {
	var (
		roster      rosterFlags
		formation   string
		captaincyIn string
		preferred   []int
	)
	cmd := &cobra.Command{
		Use:   "lineup",
		Short: "Pick a starting XI, bench order and armbands",
		RunE: func(cmd *cobra.Command, args []string) error {
			adv, err := c.newAdvisor()
			if err != nil {
				return err
			}
			res, err := adv.Lineup(advisor.LineupRequest{
				GW:        c.gw,
				Roster:    roster.roster(),
				Formation: formation,
				Captaincy: captaincyIn,
				Preferred: preferred,
			})
			if err != nil {
				return err
			}
			return c.emit(cmd.OutOrStdout(), adv, "lineup", res)
		},
	}
	roster.add(cmd)
	cmd.Flags().StringVar(&formation, "formation", "3-4-3", "Formation D-M-F")
	cmd.Flags().StringVar(&captaincyIn, "captaincy", "", "Captaincy input name for the armbands")
	cmd.Flags().IntSliceVar(&preferred, "prefer", nil, "Ids to start ahead of higher-value teammates")
	return cmd
}

func (c *cli) sweepCmd() *cobra.Command {
	var (
		rules   ruleFlags
		budgets []string
	)
	cmd := &cobra.Command{
		Use:     "sweep",
		Short:   "Optimize the same pool at several budgets concurrently",
		Example: `  fplopt sweep --budgets 95,97.5,100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			adv, err := c.newAdvisor()
			if err != nil {
				return err
			}
			pts, err := adv.Sweep(commandContext(cmd), advisor.SweepRequest{
				GW: c.gw, Budgets: budgets, Rules: rules.overrides(),
			})
			if err != nil {
				return err
			}
			return c.emit(cmd.OutOrStdout(), adv, "sweep", map[string]any{"points": pts})
		},
	}
	rules.add(cmd)
	cmd.Flags().StringSliceVar(&budgets, "budgets", nil, "Budgets to solve, e.g. 95,100")
	_ = cmd.MarkFlagRequired("budgets")
	return cmd
}

func (c *cli) fetchCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download bootstrap-static and fixtures; write the gameweek pool and captaincy context",
		RunE: func(cmd *cobra.Command, args []string) error {
			fc := fetch.NewClient(store.NewJSONStore(c.cfg.DataRoot))
			fc.Log = c.logger
			gw, n, err := fc.SyncPool(commandContext(cmd), force)
			if err != nil {
				return err
			}
			c.logger.Info("fetched pool", zap.Int("gw", gw), zap.Int("candidates", n), zap.String("data_root", c.cfg.DataRoot))
			fmt.Fprintf(cmd.OutOrStdout(), "gw %d: %d candidates -> %s, %s\n",
				gw, n, store.PoolPath(gw), store.CaptaincyPath(fmt.Sprintf("gw%d", gw)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Ignore cached downloads")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config [path]",
		Short: "Write the effective configuration as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := c.cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}
