package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/cache"
	"github.com/sells-group/siteplan/internal/pipeline"
	"github.com/sells-group/siteplan/internal/store"
)

var (
	runName       string
	runHouseholds string
	runCenters    string
	runBaseline   string
	runNoCache    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the facility placement pipeline",
	Long:  "Reads the household table, clusters each region into villages, places facilities, computes coverage curves, and writes per-region and merged results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Flags override the config file.
		if runName != "" {
			cfg.RunName = runName
		}
		if runHouseholds != "" {
			cfg.Data.HouseholdsFile = runHouseholds
		}
		if runCenters != "" {
			cfg.Data.VillageCentersFile = runCenters
		}
		if runBaseline != "" {
			cfg.Data.BaselineFile = runBaseline
		}
		if runNoCache {
			cfg.Cache.Enabled = false
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.Data.HouseholdsFile == "" {
			return eris.New("run: households file is required (--households or data.households_file)")
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		c, err := cache.New(cfg.Cache.Dir, cfg.Cache.Enabled)
		if err != nil {
			return err
		}

		result, err := pipeline.New(cfg, st, c).Run(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("run complete",
			zap.Int("regions", result.RegionsTotal),
			zap.Int("failed", result.RegionsFailed),
			zap.Int("households", result.Households),
			zap.Int("villages", result.Villages),
			zap.Int("facilities", result.Facilities),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "run name (default from config)")
	runCmd.Flags().StringVar(&runHouseholds, "households", "", "household coordinates CSV")
	runCmd.Flags().StringVar(&runCenters, "centers", "", "village center seeds CSV")
	runCmd.Flags().StringVar(&runBaseline, "baseline", "", "baseline facility table (CSV or XLSX)")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "disable the computation cache")
	rootCmd.AddCommand(runCmd)
}
