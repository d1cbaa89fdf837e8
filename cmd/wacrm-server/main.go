// Command wacrm-server serves the contact API and keeps the WhatsApp link.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "wacrm-server",
		Short: "WhatsApp CRM contact server",
		Long: `wacrm-server stores contacts and categories per tenant and exposes them
over a token-protected REST API.

Example usage:
  wacrm-server serve                         # Start the API on :8080
  wacrm-server token --tenant acme --ttl 720h`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is wacrm-server.yaml)")

	root.AddCommand(newServeCommand(&cfgFile), newTokenCommand(&cfgFile))
	return root
}
