// Command rete-inspect is a read-only operator CLI over a blackboard
// Store: inspect fact/audit/message-queue state without running an
// engine. Grounded on the teacher's cmd/nerd/main.go (rootCmd +
// PersistentPreRunE logger init) and cmd/nerd/cmd_query.go/stats.go's
// query/status subcommand shapes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codenerd-labs/rete/blackboard"
	"github.com/codenerd-labs/rete/blackboard/hybridstore"
	"github.com/codenerd-labs/rete/blackboard/memstore"
	"github.com/codenerd-labs/rete/blackboard/sqlitestore"
	"github.com/codenerd-labs/rete/internal/config"
	"github.com/codenerd-labs/rete/internal/logging"
)

var (
	configPath string
	logger     *zap.Logger
	cfg        config.Config
)

// rootCmd is the entry point; every subcommand opens the configured
// Store read-only-in-spirit (the Store interface itself has no
// read-only mode, so subcommands simply never call a mutating method).
var rootCmd = &cobra.Command{
	Use:   "rete-inspect",
	Short: "Inspect a RETE blackboard Store's facts, audit trail, and message queue",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		l, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config YAML (defaults if unset or missing)")
	rootCmd.AddCommand(statsCmd, factsCmd, historyCmd, messagesCmd)
}

// openStore constructs the Store named by cfg.Store.Backend, per
// SPEC_FULL.md §4.8.1-3.
func openStore() (blackboard.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		return sqlitestore.Open(cfg.Store.SQLitePath, cfg.Store.TombstoneRetention)
	case config.BackendMemory:
		return memstore.Open(cfg.Store.MemoryPath, cfg.Audit, cfg.Store.TombstoneRetention)
	case config.BackendHybrid:
		return hybridstore.Open(cfg.Store.MemoryPath, cfg.Store.SQLitePath, cfg.Audit, cfg.Store.TombstoneRetention)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
