package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"navigator/internal/config"
	"navigator/internal/core/agent"
	"navigator/internal/core/navigate"
	"navigator/internal/core/planner"
	"navigator/internal/core/sites"
	"navigator/internal/engine"
	"navigator/internal/logger"
)

// goalFlags are shared by run and plan.
type goalFlags struct {
	sites  []string
	budget float64
	max    int
	steps  int
}

func (f *goalFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.sites, "site", nil, "target site, repeatable (default: the search engine)")
	cmd.Flags().Float64Var(&f.budget, "budget", 0, "maximum price")
	cmd.Flags().IntVar(&f.max, "max", 0, "maximum number of results")
	cmd.Flags().IntVar(&f.steps, "steps", 0, "step budget per run")
}

func (f *goalFlags) request(text string) navigate.Request {
	req := navigate.Request{Text: text, Sites: f.sites, MaxSteps: f.steps}
	if f.budget > 0 {
		b := f.budget
		req.Constraints.MaxPrice = &b
	}
	req.Constraints.MaxResults = f.max
	return req
}

var runFlags goalFlags

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Navigate to products matching a free-text query",
	Long: `Navigate to products matching a free-text query.

Examples:
  navctl run "wireless mouse under 1500 on flipkart"
  navctl run "usb-c hub" --site amazon --budget 40 --max 3 --out result.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cmd.Flags().Changed("headless") {
			cfg.Headless, _ = cmd.Flags().GetBool("headless")
		}
		out, _ := cmd.Flags().GetString("out")
		verbose, _ := cmd.Flags().GetBool("verbose")

		eng, err := engine.Build(cfg, nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		svc := navigate.NewService(navigate.Deps{
			Agent:    eng.Agent,
			Catalog:  eng.Catalog,
			Planner:  eng.Planner,
			MaxSteps: cfg.MaxSteps,
			Timeout:  cfg.RunTimeout,
		})
		goal, err := svc.Goal(runFlags.request(strings.Join(args, " ")))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if verbose {
			ctx = agent.WithObserver(ctx, traceTo(cmd.ErrOrStderr()))
		}

		res := eng.Agent.Run(ctx, goal)
		if err := writeJSON(cmd.OutOrStdout(), out, res); err != nil {
			return err
		}
		if !res.Succeeded() {
			return fmt.Errorf("navigation failed: %v", res.Failure)
		}
		return nil
	},
}

var planFlags goalFlags

var planCmd = &cobra.Command{
	Use:   "plan <query>",
	Short: "Show the opening actions for each target site without a browser",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		catalog, err := sites.Load(cfg.SearchEngine)
		if err != nil {
			return err
		}
		p := planner.New(catalog, nil)
		svc := navigate.NewService(navigate.Deps{Catalog: catalog, Planner: p, MaxSteps: cfg.MaxSteps, Timeout: cfg.RunTimeout})
		goal, err := svc.Goal(planFlags.request(strings.Join(args, " ")))
		if err != nil {
			return err
		}
		outline, err := svc.Plan(goal)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), "", map[string]any{"goal": goal, "plan": outline})
	},
}

func init() {
	runFlags.bind(runCmd)
	runCmd.Flags().Bool("headless", true, "run the browser without a window")
	runCmd.Flags().String("out", "", "write the JSON result to this file instead of stdout")
	runCmd.Flags().BoolP("verbose", "v", false, "print every step to stderr")

	planFlags.bind(planCmd)
}

func traceTo(w io.Writer) agent.Observer {
	log := logger.NewWithConfig("navctl", logger.Config{AppEnv: "development", Out: w})
	return func(e agent.Event) {
		ev := log.Info()
		if e.Failure != nil {
			ev = log.Warn().Str("failure", e.Failure.Error())
		}
		ev.Str("site", e.Site).Int("step", e.Step).Str("phase", string(e.Phase)).
			Str("action", string(e.Action.Kind)).Bool("retry", e.Retry).Dur("delay", e.Delay).Msg("step")
	}
}

func writeJSON(stdout io.Writer, path string, v any) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
