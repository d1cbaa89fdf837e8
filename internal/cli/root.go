// Package cli implements the wacrm command line client.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wacrm/internal/config"
	"wacrm/internal/logging"
	"wacrm/internal/remote"
)

// app carries what every subcommand needs once the config is loaded.
type app struct {
	cfgFile   string
	serverURL string
	noColor   bool

	cfg    *config.ClientConfig
	log    *zap.Logger
	client *remote.Client
	out    *printer
	in     *bufio.Reader
}

// NewRootCommand builds the wacrm command tree writing to stdout and stderr.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

func newRootCommand(in io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{in: bufio.NewReader(in)}

	root := &cobra.Command{
		Use:   "wacrm",
		Short: "Manage WhatsApp CRM contacts from the terminal",
		Long: `wacrm talks to a wacrm-server over its REST API.

Example usage:
  wacrm contacts list --category 3      # List contacts in category 3
  wacrm contacts move --to Leads 12 15
  wacrm contacts delete --search test --all
  wacrm contacts import contacts.csv
  wacrm drafts create Welcome --content "Hi {{first_name}}"
  wacrm campaigns send --draft 1 --to Leads
  wacrm browse                          # Interactive browser`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(stdout, stderr)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.SetIn(in)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is .wacrm.yaml)")
	root.PersistentFlags().StringVar(&a.serverURL, "server", "", "server URL, overrides server.url")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newContactsCommand(a),
		newCategoriesCommand(a),
		newDraftsCommand(a),
		newCampaignsCommand(a),
		newWhatsAppCommand(a),
		newBrowseCommand(a),
	)
	return root
}

func (a *app) init(stdout, stderr io.Writer) error {
	cfg, err := config.LoadClient(a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.serverURL != "" {
		cfg.Server.URL = a.serverURL
	}
	a.cfg = cfg

	a.log, err = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	a.client, err = remote.New(cfg.Server.URL, cfg.Credentials(),
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Server.Timeout}),
		remote.WithLogger(a.log.Named("remote")),
		remote.WithMaxTries(cfg.Server.MaxTries),
	)
	if err != nil {
		return err
	}

	a.out = newPrinter(stdout, stderr, resolveColors(a.noColor))
	a.log.Debug("configuration loaded",
		zap.String("server", cfg.Server.URL),
		zap.Int("page_size", cfg.List.PageSize))
	return nil
}

// confirm asks a yes/no question on stdin. Anything but y or yes is a no.
func (a *app) confirm(question string) (bool, error) {
	a.out.Prompt("%s [y/N]: ", question)
	answer, err := a.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func resolveColors(disabled bool) bool {
	if disabled {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}
