// Command fplopt runs the squad optimizer, transfer planner and captaincy
// selector against snapshots in a data root.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fpl-squad-mcp/internal/advisor"
	"fpl-squad-mcp/internal/config"
	"fpl-squad-mcp/internal/logging"
)

// cli holds the persistent flags and what PersistentPreRunE builds from
// them. Every newRootCmd call gets its own, so repeated runs share nothing.
type cli struct {
	configPath string
	dataRoot   string
	verbose    bool
	timeout    time.Duration
	outName    string
	gw         int

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:   "fplopt",
		Short: "FPL squad optimizer",
		Long: `fplopt picks the highest predicted-value squad under the FPL roster rules,
plans transfers from an existing squad, and ranks captaincy candidates.

Pools are read from <data-root>/pool/gw/<gw>.json; --gw 0 uses the current
gameweek from <data-root>/game/game.json. Results are printed as JSON.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "fplopt.yaml", "Path to YAML config (missing file uses defaults)")
	rootCmd.PersistentFlags().StringVar(&c.dataRoot, "data-root", "", "Snapshot directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 0, "Per-solve timeout (overrides config)")
	rootCmd.PersistentFlags().StringVar(&c.outName, "out", "", "Also write the result to results/<command>/<name>.json")
	rootCmd.PersistentFlags().IntVar(&c.gw, "gw", 0, "Gameweek pool (0 = current)")

	rootCmd.AddCommand(
		c.optimizeCmd(),
		c.transfersCmd(),
		c.captainCmd(),
		c.validateCmd(),
		c.lineupCmd(),
		c.sweepCmd(),
		c.fetchCmd(),
		c.configCmd(),
	)
	return rootCmd
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.dataRoot != "" {
		cfg.DataRoot = c.dataRoot
	}
	if c.timeout > 0 {
		cfg.Solver.Timeout = c.timeout.String()
	}
	c.cfg = cfg
	c.logger, err = logging.New(cfg.Logging.Level, "console", c.verbose)
	return err
}

func main() {
	// Ctrl-C cancels the running solve at its next node.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func (c *cli) newAdvisor() (*advisor.Advisor, error) {
	return advisor.New(c.cfg, c.logger)
}

// emit prints v as indented JSON and, with --out, saves it under kind.
func (c *cli) emit(w io.Writer, adv *advisor.Advisor, kind string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, string(b)); err != nil {
		return err
	}
	if c.outName != "" {
		if err := adv.SaveResult(kind, c.outName, v); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		c.logger.Info("result saved", zap.String("kind", kind), zap.String("name", c.outName))
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
