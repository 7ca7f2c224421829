package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/onronder/ContentLabTech-sub011/internal/config"
	"github.com/onronder/ContentLabTech-sub011/pkg/log"
)

var rootCmd = &cobra.Command{
	Use:   "analysis-pipeline",
	Short: "Content analytics analysis pipeline",
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(weightsCmd)
}

// initLogger installs the global zap logger at the configured level. The returned func restores
// the previous globals and flushes the logger.
func initLogger(cfg *config.Config) func() {
	logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger := log.InitLog(logLvl, cfg.Service.LogFormat)
	undo := zap.ReplaceGlobals(logger)
	return func() {
		_ = logger.Sync()
		undo()
	}
}
