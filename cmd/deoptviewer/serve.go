package deoptviewer

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/deoptviewer/internal/bundle"
	"github.com/kamilpajak/deoptviewer/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve <dir>",
	Short: "Serve a report bundle on localhost",
	Args:  cobra.ExactArgs(1),
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir := args[0]
	m, err := bundle.ReadManifest(dir)
	if err != nil {
		return fmt.Errorf("%s is not a report bundle: %w", dir, err)
	}

	srv, err := server.Start(dir, fmt.Sprintf("127.0.0.1:%d", servePort))
	if err != nil {
		return err
	}

	// Graceful shutdown on interrupt (Ctrl+C)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(os.Stderr, "Report %s (%d files): %s\n", m.RunID, m.Files, srv.URL(bundle.IndexFile))
	if err := srv.Wait(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "\nShutting down...")
	return nil
}
