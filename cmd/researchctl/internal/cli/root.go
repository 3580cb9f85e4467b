// Package cli implements researchctl, a client for the research HTTP API.
package cli

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Output  string // "table" | "json" | "yaml"
	Timeout time.Duration
}

// ValidOutputs defines the allowed output formats.
var ValidOutputs = []string{"table", "json", "yaml"}

func defaultServer() string {
	if s := os.Getenv("RESEARCH_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCommand creates the researchctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "researchctl",
		Short: "Submit and inspect repository research workflows",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidOutputs, opts.Output) {
				return fmt.Errorf("invalid output %q: must be one of %v", opts.Output, ValidOutputs)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", defaultServer(), "research API base URL (env RESEARCH_SERVER)")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "table", "output format (table|json|yaml)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}
