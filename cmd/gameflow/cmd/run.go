package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/playforge/gameflow/internal/adapter/outbound/sqlite"
	"github.com/playforge/gameflow/internal/config"
	"github.com/playforge/gameflow/internal/domain/rule"
	"github.com/playforge/gameflow/internal/service"
	"github.com/playforge/gameflow/internal/telemetry"
	"github.com/playforge/gameflow/pkg/ruledef"
)

var (
	defFiles   []string
	workflowID string
	runVars    []string
	userID     string
	sessionID  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load definitions and run continuous evaluation or a workflow",
	Long: `Run loads rule and workflow definitions, builds an engine, and either
drives one workflow execution to completion (--workflow) or starts the
continuous evaluation loop over the supplied variables (--var) until
interrupted.`,
	RunE: runEngine,
}

func init() {
	runCmd.Flags().StringSliceVar(&defFiles, "defs", nil, "definition files to load (repeatable)")
	runCmd.Flags().StringVar(&workflowID, "workflow", "", "workflow id to execute to completion")
	runCmd.Flags().StringSliceVar(&runVars, "var", nil, "context variable as key=value (repeatable)")
	runCmd.Flags().StringVar(&userID, "user", "", "user id for rule contexts")
	runCmd.Flags().StringVar(&sessionID, "session", "", "session id for rule contexts")
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []service.EngineOption{
		service.WithEvaluationCacheSize(cfg.Engine.CacheSize),
		service.WithExecutionPollInterval(cfg.PollInterval()),
	}

	var providers *telemetry.Providers
	if cfg.Telemetry.Enabled {
		providers, err = telemetry.Setup(ctx)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = providers.Shutdown(shutdownCtx)
		}()
		opts = append(opts, service.WithEngineTracer(providers.Tracer))
	}

	if cfg.Snapshot.Path != "" {
		store, err := sqlite.Open(cfg.Snapshot.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, service.WithSnapshotStore(store))
	}

	engine, err := service.NewEngine(logger, opts...)
	if err != nil {
		return err
	}
	defer engine.Shutdown()

	if providers != nil {
		if err := providers.RegisterRuleCountGauge(func() int {
			return len(engine.Rules().All())
		}); err != nil {
			logger.Warn("failed to register rule count gauge", "error", err)
		}
	}

	if err := loadDefinitions(engine, defFiles); err != nil {
		return err
	}

	vars := parseVars(runVars)

	if workflowID != "" {
		return runWorkflow(ctx, engine, vars)
	}
	return runContinuous(ctx, engine, cfg.EvalInterval(), vars)
}

// loadDefinitions registers every rule and workflow from the given files.
func loadDefinitions(engine *service.Engine, paths []string) error {
	for _, path := range paths {
		f, err := ruledef.DecodeFile(path)
		if err != nil {
			return err
		}
		for _, r := range f.Rules {
			if r.Kind != string(rule.KindExpr) {
				return fmt.Errorf("%s: rule %s: only expr rules can be loaded from files", path, r.ID)
			}
			if err := engine.RegisterExprRule(ruledef.ToInfo(r), r.Expression, ruledef.ToActions(r.Actions)); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if !r.Enabled {
				engine.Rules().SetEnabled(r.ID, false)
			}
		}
		for _, w := range f.Workflows {
			def, err := ruledef.ToDefinition(w)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := engine.RegisterWorkflow(def); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return nil
}

// runWorkflow starts one execution and waits for it to finish or for the
// context to be cancelled.
func runWorkflow(ctx context.Context, engine *service.Engine, vars map[string]any) error {
	execID, err := engine.StartWorkflowAs(ctx, workflowID, vars, userID, sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("started execution %s\n", execID)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = engine.CancelExecution(execID)
			return ctx.Err()
		case <-ticker.C:
			snap, ok := engine.ExecutionStatus(execID)
			if !ok {
				return fmt.Errorf("execution %s disappeared", execID)
			}
			if snap.Status.Terminal() {
				fmt.Printf("execution %s finished: status=%s state=%s progress=%.0f%%\n",
					execID, snap.Status, snap.CurrentState, snap.Progress*100)
				if snap.Error != "" {
					return fmt.Errorf("execution failed: %s", snap.Error)
				}
				return nil
			}
		}
	}
}

// runContinuous starts the continuous evaluation loop over a fixed context
// and prints each batch until interrupted.
func runContinuous(ctx context.Context, engine *service.Engine, interval time.Duration, vars map[string]any) error {
	provider := func(context.Context) (*rule.Context, error) {
		rc := rule.NewContext(vars)
		rc.UserID = userID
		rc.SessionID = sessionID
		return rc, nil
	}

	batches, err := engine.StartContinuousEvaluation(provider, interval)
	if err != nil {
		return err
	}
	defer engine.StopContinuousEvaluation()

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			allowed := 0
			for _, res := range batch.Results {
				if res.Allowed {
					allowed++
				}
			}
			fmt.Printf("iteration %d: %d rules evaluated, %d allowed\n",
				batch.Iteration, len(batch.Results), allowed)
		}
	}
}

// parseVars converts repeated key=value flags into a variable map.
// Values stay strings; expression rules coerce as needed.
func parseVars(pairs []string) map[string]any {
	vars := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, found := strings.Cut(p, "=")
		if !found {
			vars[p] = true
			continue
		}
		vars[k] = v
	}
	return vars
}
