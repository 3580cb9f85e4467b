package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/repo-research/internal/db"
	"github.com/Kocoro-lab/repo-research/internal/server"
)

func (o *RootOptions) client() *Client {
	return NewClient(o.Server, o.Timeout)
}

func (o *RootOptions) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.Timeout)
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	var req server.StartRequest

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Start a research workflow",
		Example: `  researchctl submit --session s-42 --repo acme/api --question "How is auth handled?"
  researchctl submit --session s-42 --repo acme/api --question "Where are migrations?" --depth thorough --task LIN-123`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rootOpts.requestContext(cmd)
			defer cancel()
			wf, err := rootOpts.client().Submit(ctx, req)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts.Output, []db.ResearchWorkflow{*wf})
		},
	}

	cmd.Flags().StringVar(&req.SessionID, "session", "", "session the results are delivered to")
	cmd.Flags().StringVar(&req.Repository, "repo", "", "repository in owner/name form")
	cmd.Flags().StringVarP(&req.Question, "question", "q", "", "question to research")
	cmd.Flags().StringVar(&req.Depth, "depth", "", "quick|medium|thorough (default medium)")
	cmd.Flags().StringVar(&req.ExternalTaskID, "task", "", "tracker task to comment on when done")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("question")

	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <workflow-id>",
		Short: "Show one research workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rootOpts.requestContext(cmd)
			defer cancel()
			wf, err := rootOpts.client().Get(ctx, args[0])
			if err != nil {
				return err
			}
			if rootOpts.Output == "table" {
				return renderDetail(cmd.OutOrStdout(), wf)
			}
			return render(cmd.OutOrStdout(), rootOpts.Output, []db.ResearchWorkflow{*wf})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var opts db.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List research workflows, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rootOpts.requestContext(cmd)
			defer cancel()
			workflows, err := rootOpts.client().List(ctx, opts)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), rootOpts.Output, workflows)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows (server default 20, max 100)")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "only workflows of this session")

	return cmd
}
