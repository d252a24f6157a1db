package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/offcast/offcast/internal/config"
	"github.com/offcast/offcast/internal/storage"
)

// ActionsClient is a Runner backed by GitHub Actions through the gh CLI.
// Workflow dispatch is fire-and-forget: the API acknowledges the event and
// returns nothing, which is why the correlation token exists at all. The
// workflow is expected to put the token into its run-name.
type ActionsClient struct {
	ghPath   string
	repo     string
	workflow string
	branch   string

	// tokenInput is the workflow input name that carries the token.
	tokenInput string

	logger *slog.Logger
}

// NewActionsClient creates the gh-backed runner from configuration.
func NewActionsClient(cfg config.RemoteConfig, logger *slog.Logger) (*ActionsClient, error) {
	if cfg.Repo == "" {
		return nil, fmt.Errorf("actions runner: repository is required")
	}
	if cfg.Workflow == "" {
		return nil, fmt.Errorf("actions runner: workflow is required")
	}

	ghPath := cfg.GhPath
	if ghPath == "" {
		ghPath = "gh"
	}
	tokenInput := cfg.TokenInput
	if tokenInput == "" {
		tokenInput = "correlation_token"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ActionsClient{
		ghPath:     ghPath,
		repo:       cfg.Repo,
		workflow:   cfg.Workflow,
		branch:     cfg.Branch,
		tokenInput: tokenInput,
		logger:     logger,
	}, nil
}

// Dispatch triggers the workflow with the job's inputs. A nil return means
// gh accepted the dispatch; it says nothing about a run existing yet.
func (c *ActionsClient) Dispatch(ctx context.Context, req DispatchRequest) error {
	if req.Token == "" {
		return fmt.Errorf("dispatch: empty correlation token")
	}

	args := []string{
		"workflow", "run", c.workflow,
		"--repo", c.repo,
	}
	if c.branch != "" {
		args = append(args, "--ref", c.branch)
	}
	args = append(args,
		"-f", c.tokenInput+"="+req.Token,
		"-f", "input_url="+refValue(req.Input),
		"-f", "output_url="+refValue(req.Output),
	)
	if req.Recipient != "" {
		args = append(args, "-f", "recipient="+req.Recipient)
	}
	if len(req.Args) > 0 {
		args = append(args, "-f", "ffmpeg_args="+strings.Join(req.Args, " "))
	}

	if _, err := c.gh(ctx, args...); err != nil {
		return fmt.Errorf("dispatching workflow %s: %w", c.workflow, err)
	}

	c.logger.Info("workflow dispatched",
		slog.String("workflow", c.workflow),
		slog.String("repo", c.repo),
	)
	return nil
}

// runListEntry mirrors the gh run list JSON fields we request.
type runListEntry struct {
	DatabaseID   int64     `json:"databaseId"`
	DisplayTitle string    `json:"displayTitle"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ListRecentRuns lists workflow runs created at or after since. The listing
// is eventually consistent: a dispatched run can be absent from one call
// and present in the next.
func (c *ActionsClient) ListRecentRuns(ctx context.Context, since time.Time) ([]RunSummary, error) {
	out, err := c.gh(ctx,
		"run", "list",
		"--repo", c.repo,
		"--workflow", c.workflow,
		"--created", ">="+since.UTC().Format(time.RFC3339),
		"--limit", "50",
		"--json", "databaseId,displayTitle,createdAt",
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	var entries []runListEntry
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil, fmt.Errorf("parsing run list: %w", err)
	}

	runs := make([]RunSummary, 0, len(entries))
	for _, e := range entries {
		runs = append(runs, RunSummary{
			ID:        strconv.FormatInt(e.DatabaseID, 10),
			Label:     e.DisplayTitle,
			CreatedAt: e.CreatedAt,
		})
	}
	return runs, nil
}

// runViewResult mirrors the gh run view JSON fields we request.
type runViewResult struct {
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	URL        string `json:"url"`
	Jobs       []struct {
		Name  string `json:"name"`
		Steps []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"steps"`
	} `json:"jobs"`
}

// GetRunStatus reads the current status of a run, including the name of the
// step executing right now when one is.
func (c *ActionsClient) GetRunStatus(ctx context.Context, runID string) (StatusReport, error) {
	out, err := c.gh(ctx,
		"run", "view", runID,
		"--repo", c.repo,
		"--json", "status,conclusion,url,jobs",
	)
	if err != nil {
		return StatusReport{}, fmt.Errorf("viewing run %s: %w", runID, err)
	}

	var result runViewResult
	if err := json.Unmarshal(out, &result); err != nil {
		return StatusReport{}, fmt.Errorf("parsing run %s: %w", runID, err)
	}

	report := StatusReport{
		Status:     result.Status,
		Conclusion: result.Conclusion,
		URL:        result.URL,
	}
	for _, job := range result.Jobs {
		for _, step := range job.Steps {
			if step.Status == "in_progress" {
				report.Step = step.Name
			}
		}
	}
	return report, nil
}

// CancelRun requests cancellation of a run.
func (c *ActionsClient) CancelRun(ctx context.Context, runID string) error {
	if _, err := c.gh(ctx, "run", "cancel", runID, "--repo", c.repo); err != nil {
		return fmt.Errorf("cancelling run %s: %w", runID, err)
	}
	return nil
}

func (c *ActionsClient) gh(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.ghPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("gh %s: %s", args[0], msg)
	}
	return stdout.Bytes(), nil
}

// refValue picks the transfer representation of a ref: the presigned URL
// when the driver issued one, the tag-scoped key otherwise.
func refValue(ref storage.Ref) string {
	if ref.URL != "" {
		return ref.URL
	}
	return ref.Key + "/" + ref.Name
}
