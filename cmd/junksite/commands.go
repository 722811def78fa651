package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eringen/junksite"
	"github.com/eringen/junksite/archive"
	"github.com/eringen/junksite/notify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <post-id>",
	Short: "Write a post archive",
	Example: `  # Export post 3 to post-3.zip
  junksite export 3

  # Export to stdout
  junksite export 3 -o -`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <archive.zip>",
	Short: "Create a post from an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", `output file, "-" for stdout (default post-<id>.zip)`)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, err := notify.Connect(cfg.NatsURL, logger.Logger)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}

	app := junksite.New(cfg,
		junksite.WithLogger(logger.Logger),
		junksite.WithPublisher(pub),
	)
	defer app.Close()
	return app.Run(ctx)
}

func runExport(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid post id %q", args[0])
	}
	store, err := junksite.NewStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	out := exportOutput
	if out == "" {
		out = fmt.Sprintf("post-%d.zip", id)
	}
	if out == "-" {
		return junksite.ExportPost(cmd.Context(), store, id, cmd.OutOrStdout())
	}

	f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if err := junksite.ExportPost(cmd.Context(), store, id, f); err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("post exported", "id", id, "file", out)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	store, err := junksite.NewStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	dec := archive.NewDecoder(cfg.ScratchDir, logger.Logger)
	post, err := junksite.ImportPost(cmd.Context(), store, dec, f)
	if err != nil {
		return err
	}
	logger.Info("post imported", "id", post.ID, "title", post.Title)
	fmt.Fprintln(cmd.OutOrStdout(), post.ID)
	return nil
}
