package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the computation cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached region computations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := cache.New(cfg.Cache.Dir, true)
		if err != nil {
			return err
		}
		if err := c.Clear(); err != nil {
			return err
		}
		zap.L().Info("cache cleared", zap.String("dir", cfg.Cache.Dir))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
