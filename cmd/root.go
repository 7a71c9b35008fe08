package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"heapdb/pkg/config"
	"heapdb/pkg/database"
)

var (
	rootCmd = &cobra.Command{
		Use:               "heapdb",
		Short:             "A disk-backed relational engine",
		Long:              "heapdb is a teaching relational engine: heap files, a locking buffer pool, and a pull-based operator tree.",
		PersistentPreRunE: rootPreRun,
	}

	configFile = "heapdb.hcl"
	noConfig   = false
	dataDir    = ""
	poolPages  = 0
	logLevel   = "info"

	cfg *config.Config
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := rootCmd.PersistentFlags()
	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")
	fs.StringVar(&dataDir, "data", dataDir, "`directory` containing heap files and the catalog")
	fs.IntVar(&poolPages, "pool-pages", poolPages, "buffer pool capacity in pages")
	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
}

func rootPreRun(cmd *cobra.Command, args []string) error {
	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("heapdb: %s", err)
	}
	log.SetLevel(ll)

	cfg = config.Default()
	if !noConfig {
		if loaded, err := config.Load(configFile); err == nil {
			cfg = loaded
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("heapdb: %s", err)
		}
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if poolPages > 0 {
		cfg.PoolPages = poolPages
	}
	return nil
}

// openDatabase assembles the database instance the subcommands run against.
func openDatabase() (*database.Context, error) {
	log.WithField("data", cfg.DataDir).Info("opening database")
	return database.Open(cfg.DataDir, cfg.PoolPages)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "heapdb: %s\n", err)
		os.Exit(1)
	}
}
