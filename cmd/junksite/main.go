// Command junksite runs the site backend and moves posts in and out of it as
// zip archives.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eringen/junksite"
	"github.com/eringen/junksite/logging"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	configPath string
	cfg        junksite.SiteConfig
	logger     *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "junksite",
	Short: "Junk removal website backend",
	Long: "junksite serves the JSON API behind the junk removal website: blog posts,\n" +
		"newsletter signups and contact requests. Posts can be exported to and\n" +
		"imported from zip archives holding post.json and an optional image.\n\n" +
		"Settings come from an optional YAML file and JUNKSITE_* environment variables.",
	PersistentPreRunE: initialize,
	SilenceErrors:     true,
	SilenceUsage:      true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, exportCmd, importCmd, versionCmd)
}

func initialize(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = junksite.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger = logging.New(logging.Options{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Stderr: cmd.ErrOrStderr(),
	})
	if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
		logger.Warn("invalid log level configured, using info", "configured", cfg.LogLevel)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the junksite version",
	Args:  cobra.NoArgs,
	// no config needed
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "junksite %s\n", version)
	},
}

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
