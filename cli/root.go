// Package cli implements archivectl, a command line client for the query
// and tool surfaces.
package cli

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the resolved global flags into subcommands.
type app struct {
	v          *viper.Viper
	httpClient *http.Client
	now        func() time.Time
	client     *Client
	format     string
}

// Option customises the root command.
type Option func(*app)

// WithHTTPClient routes all requests through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *app) { a.httpClient = hc }
}

// WithClock overrides the clock used for relative time ranges.
func WithClock(now func() time.Time) Option {
	return func(a *app) { a.now = now }
}

// NewRootCommand builds the archivectl command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{v: viper.New(), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:          "archivectl",
		Short:        "Query logs and metrics stored by the archives platform",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.format = strings.ToLower(a.v.GetString("format"))
			if !validFormat(a.format) {
				return fmt.Errorf("unknown output format %q, expected table, json or compact", a.format)
			}
			a.client = NewClient(a.v.GetString("api_url"), a.v.GetString("mcp_url"), a.httpClient, a.v.GetBool("verbose"))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("api-url", "http://localhost:8080", "API server URL")
	flags.String("mcp-url", "http://localhost:8081", "Tool server URL")
	flags.StringP("format", "f", FormatTable, "Output format: table, json or compact")
	flags.BoolP("verbose", "v", false, "Log HTTP requests and responses")

	a.v.SetEnvPrefix("archives")
	a.v.AutomaticEnv()
	_ = a.v.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = a.v.BindPFlag("mcp_url", flags.Lookup("mcp-url"))
	_ = a.v.BindPFlag("format", flags.Lookup("format"))
	_ = a.v.BindPFlag("verbose", flags.Lookup("verbose"))

	root.AddCommand(newLogsCommand(a), newMetricsCommand(a), newStatusCommand(a))
	return root
}
