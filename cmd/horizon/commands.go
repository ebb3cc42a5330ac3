package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"EventHorizon/internal/di"
	"EventHorizon/internal/domain/models"
	"EventHorizon/internal/usecase"
	"EventHorizon/pkg/config"
	"EventHorizon/pkg/server"
)

var (
	configPath string
	jsonOut    bool

	gridAMin, gridAMax string
	gridBMin, gridBMax string

	mineCount int
	mineRange string
	mineSeed  int64

	rootCmd = &cobra.Command{
		Use:           "horizon",
		Short:         "Heuristic rank classifier for elliptic curves y^2 = x^3 + Ax + B",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	probeCmd = &cobra.Command{
		Use:   "probe A B",
		Short: "Classify a single curve and print its signals",
		Args:  cobra.ExactArgs(2),
		RunE:  runProbe,
	}

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Classify every curve in a coefficient grid",
		RunE:  runScan,
	}

	mineCmd = &cobra.Command{
		Use:   "mine",
		Short: "Classify randomly drawn curves",
		RunE:  runMine,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, Kafka consumer and queue workers",
		RunE:  runServe,
	}

	workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "Run Redis queue workers only",
		RunE:  runWorker,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")

	scanCmd.Flags().StringVar(&gridAMin, "a-min", "-10", "lower bound for A")
	scanCmd.Flags().StringVar(&gridAMax, "a-max", "10", "upper bound for A")
	scanCmd.Flags().StringVar(&gridBMin, "b-min", "-10", "lower bound for B")
	scanCmd.Flags().StringVar(&gridBMax, "b-max", "10", "upper bound for B")

	mineCmd.Flags().IntVar(&mineCount, "count", 1000, "number of curves to draw; 0 mines until interrupted")
	mineCmd.Flags().StringVar(&mineRange, "range", "", "coefficient bound; overrides batch.mine_range")
	mineCmd.Flags().Int64Var(&mineSeed, "seed", 0, "random seed; 0 uses batch.seed or the clock")

	rootCmd.AddCommand(probeCmd, scanCmd, mineCmd, serveCmd, workerCmd)
}

func loadApp() (*server.App, *config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config load failed: %w", err)
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return app, cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withApp runs fn and always closes the app with a fresh deadline.
func withApp(fn func(ctx context.Context, app *server.App, cfg *config.Config) error) error {
	app, cfg, err := loadApp()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	runErr := fn(ctx, app, cfg)

	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func runProbe(_ *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, app *server.App, _ *config.Config) error {
		v, err := app.Probe(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(v)
		}
		printVerdict(v)
		return nil
	})
}

func runScan(_ *cobra.Command, _ []string) error {
	src, err := usecase.NewGridSource(gridAMin, gridAMax, gridBMin, gridBMax)
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, app *server.App, _ *config.Config) error {
		return runBatch(ctx, app, src)
	})
}

func runMine(_ *cobra.Command, _ []string) error {
	return withApp(func(ctx context.Context, app *server.App, cfg *config.Config) error {
		raw := cfg.Batch.MineRange
		if mineRange != "" {
			raw = mineRange
		}
		bound, ok := config.ParseRange(raw)
		if !ok {
			return fmt.Errorf("range %q is not a positive integer", raw)
		}
		seed := mineSeed
		if seed == 0 {
			seed = cfg.Batch.Seed
		}
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		err := runBatch(ctx, app, &usecase.RandomSource{Range: bound, Count: mineCount, Seed: seed})
		if mineCount <= 0 && errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func runServe(_ *cobra.Command, _ []string) error {
	return withApp(func(ctx context.Context, app *server.App, _ *config.Config) error {
		return app.Serve(ctx)
	})
}

func runWorker(_ *cobra.Command, _ []string) error {
	return withApp(func(ctx context.Context, app *server.App, _ *config.Config) error {
		return app.Work(ctx)
	})
}

func runBatch(ctx context.Context, app *server.App, src usecase.CurveSource) error {
	sum, err := app.RunBatch(ctx, src)
	if jsonOut {
		if perr := printJSON(sum); perr != nil && err == nil {
			err = perr
		}
		return err
	}
	printSummary(sum)
	return err
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printVerdict(v models.Verdict) {
	fmt.Printf("curve       y^2 = x^3 + (%s)x + (%s)\n", v.A, v.B)
	fmt.Printf("category    %s\n", v.Category)
	fmt.Printf("tier        %s\n", v.Tier)
	fmt.Printf("theta_eh    %.6f\n", v.Signals.Theta)
	fmt.Printf("tau_max     %d\n", v.Signals.Tau)
	fmt.Printf("sample      %d primes\n", v.SampleSize)
	if len(v.Divergent) > 0 {
		fmt.Printf("divergent   %v\n", v.Divergent)
	}
	if vr := v.Verification; vr != nil {
		fmt.Printf("verified    %s\n", vr.Status)
	}
}

func printSummary(s usecase.Summary) {
	fmt.Printf("run %s: %d curves, %d classified, %d failed in %s\n",
		s.RunID, s.Total, s.Classified, s.Failed, s.Took.Round(time.Millisecond))
	for _, k := range sortedKeys(s.ByCategory) {
		fmt.Printf("  %-20s %d\n", k, s.ByCategory[models.Category(k)])
	}
	for _, k := range sortedKeys(s.ByTier) {
		fmt.Printf("  tier %-15s %d\n", k, s.ByTier[models.Tier(k)])
	}
	for _, k := range sortedKeys(s.ByError) {
		fmt.Printf("  error %-14s %d\n", k, s.ByError[k])
	}
	for _, v := range s.Top {
		fmt.Printf("  top A=%s B=%s theta=%.4f tau=%d %s\n", v.A, v.B, v.Signals.Theta, v.Signals.Tau, v.Tier)
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
