package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Kocoro-lab/repo-research/internal/db"
)

// view is the yaml shape of a workflow; db.ResearchWorkflow only carries
// json and db tags.
type view struct {
	ID             string     `yaml:"id"`
	SessionID      string     `yaml:"session_id"`
	Repository     string     `yaml:"repository"`
	Question       string     `yaml:"question"`
	Depth          string     `yaml:"depth"`
	Status         string     `yaml:"status"`
	ExternalTaskID string     `yaml:"external_task_id,omitempty"`
	Results        string     `yaml:"results,omitempty"`
	Error          string     `yaml:"error,omitempty"`
	CreatedAt      time.Time  `yaml:"created_at"`
	CompletedAt    *time.Time `yaml:"completed_at,omitempty"`
}

func toView(wf db.ResearchWorkflow) view {
	return view{
		ID:             wf.ID,
		SessionID:      wf.SessionID,
		Repository:     wf.Repository,
		Question:       wf.Question,
		Depth:          string(wf.Depth),
		Status:         string(wf.Status),
		ExternalTaskID: deref(wf.ExternalTaskID),
		Results:        deref(wf.Results),
		Error:          deref(wf.Error),
		CreatedAt:      wf.CreatedAt,
		CompletedAt:    wf.CompletedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func render(w io.Writer, format string, workflows []db.ResearchWorkflow) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(workflows) == 1 {
			return enc.Encode(workflows[0])
		}
		return enc.Encode(workflows)
	case "yaml":
		views := make([]view, len(workflows))
		for i, wf := range workflows {
			views[i] = toView(wf)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		if len(views) == 1 {
			return enc.Encode(views[0])
		}
		return enc.Encode(views)
	default:
		return renderTable(w, workflows)
	}
}

func renderTable(w io.Writer, workflows []db.ResearchWorkflow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDEPTH\tREPOSITORY\tQUESTION\tCREATED")
	for _, wf := range workflows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			wf.ID, wf.Status, wf.Depth, wf.Repository, clip(wf.Question, 48), wf.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func renderDetail(w io.Writer, wf *db.ResearchWorkflow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", wf.ID)
	fmt.Fprintf(tw, "Status:\t%s\n", wf.Status)
	fmt.Fprintf(tw, "Repository:\t%s\n", wf.Repository)
	fmt.Fprintf(tw, "Question:\t%s\n", wf.Question)
	fmt.Fprintf(tw, "Depth:\t%s\n", wf.Depth)
	fmt.Fprintf(tw, "Session:\t%s\n", wf.SessionID)
	if wf.HasExternalTask() {
		fmt.Fprintf(tw, "Task:\t%s\n", *wf.ExternalTaskID)
	}
	fmt.Fprintf(tw, "Created:\t%s\n", wf.CreatedAt.Format(time.RFC3339))
	if wf.CompletedAt != nil {
		fmt.Fprintf(tw, "Completed:\t%s\n", wf.CompletedAt.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if wf.Error != nil {
		fmt.Fprintf(w, "\nError: %s\n", *wf.Error)
	}
	if wf.Results != nil {
		fmt.Fprintf(w, "\n%s\n", strings.TrimRight(*wf.Results, "\n"))
	}
	return nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
