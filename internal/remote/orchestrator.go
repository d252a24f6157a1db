package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/offcast/offcast/internal/backend"
	"github.com/offcast/offcast/internal/config"
	"github.com/offcast/offcast/internal/ffmpeg"
	"github.com/offcast/offcast/internal/observability"
	"github.com/offcast/offcast/internal/storage"
)

// ActionsName is the registry name of the remote Actions backend.
const ActionsName = "actions"

// Cipher is the artifact protection contract the orchestrator needs.
// Satisfied by crypto.GPG.
type Cipher interface {
	Encrypt(ctx context.Context, inputPath, outputPath, recipient string) error
	Decrypt(ctx context.Context, inputPath, outputPath string) error
	RestoreMetadata(ctx context.Context, originalPath, targetPath string) error
}

// Orchestrator runs one job through the remote pipeline: prepare, dispatch,
// correlate, monitor, retrieve, cleanup. It implements backend.Backend.
//
// The dispatch channel returns no handle, so a failed correlation does not
// mean a failed job: the run may execute to completion unobserved. Every
// failure past dispatch therefore reports the correlation token, and the
// run ID once it is known.
type Orchestrator struct {
	runner Runner
	store  storage.Store
	cipher Cipher
	ws     *storage.Workspace
	cfg    config.RemoteConfig

	runnerRecipient string
	userRecipient   string

	logger *slog.Logger
}

// NewOrchestrator wires the remote backend.
func NewOrchestrator(
	runner Runner,
	store storage.Store,
	cipher Cipher,
	ws *storage.Workspace,
	cfg config.RemoteConfig,
	cryptoCfg config.CryptoConfig,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		runner:          runner,
		store:           store,
		cipher:          cipher,
		ws:              ws,
		cfg:             cfg,
		runnerRecipient: cryptoCfg.RunnerRecipient,
		userRecipient:   cryptoCfg.UserRecipient,
		logger:          logger,
	}
}

func (o *Orchestrator) Name() string { return ActionsName }

// Execute runs the job remotely and returns the retrieved artifact.
func (o *Orchestrator) Execute(ctx context.Context, job backend.Job, onProgress backend.ProgressFunc) (*backend.Result, error) {
	emit := func(stage, message string) {
		if onProgress != nil {
			onProgress(backend.ProgressEvent{Stage: stage, Message: message})
		}
	}

	token := uuid.NewString()
	run := NewRun(token)
	logger := observability.WithCorrelationID(observability.WithJobID(o.logger, job.ID), token)

	// Resolve the template before any side effect so an unsafe or
	// incomplete one cannot reach the remote side.
	args, err := ffmpeg.ResolveTemplate(job.Template, job.Params)
	if err != nil {
		return nil, o.failure(backend.CategoryTemplate, "template", run, err)
	}
	// The runner receives the arguments as one whitespace-joined workflow
	// input and re-splits it, so every argument must survive that round
	// trip verbatim. Literal template arguments are checked here, not just
	// parameter values.
	if err := ffmpeg.ValidateArgs(args); err != nil {
		return nil, o.failure(backend.CategoryTemplate, "template", run, err)
	}

	jobDir, err := o.ws.JobDir(job.ID)
	if err != nil {
		return nil, o.failure(backend.CategoryPrepare, "workspace", run, err)
	}
	defer o.ws.CleanupJob(job.ID)

	// Phase 1: encrypt and upload the input.
	emit("prepare", "encrypting input")
	encPath := filepath.Join(jobDir, "input.gpg")
	if err := o.cipher.Encrypt(ctx, job.InputPath, encPath, o.runnerRecipient); err != nil {
		return nil, o.failure(backend.CategoryPrepare, "encrypt", run, err)
	}

	emit("prepare", "uploading input")
	inRef, err := o.store.Upload(ctx, encPath)
	if err != nil {
		return nil, o.failure(backend.CategoryPrepare, "upload", run, err)
	}
	defer o.cleanup(inRef)

	outRef, err := o.store.OutputRef(ctx, inRef)
	if err != nil {
		return nil, o.failure(backend.CategoryPrepare, "output ref", run, err)
	}

	// Phase 2: dispatch. Never retried: a retry on an ambiguous error
	// could start the job twice.
	emit("dispatch", "dispatching remote job")
	dispatchCtx, cancel := context.WithTimeout(ctx, o.cfg.DispatchTimeout)
	err = o.runner.Dispatch(dispatchCtx, DispatchRequest{
		Token:     token,
		Input:     inRef,
		Output:    outRef,
		Recipient: o.userRecipient,
		Args:      args,
	})
	cancel()
	if err != nil {
		return nil, o.failure(backend.CategoryDispatch, "dispatch", run, err)
	}
	dispatchedAt := time.Now()
	logger.Info("job dispatched, correlating")

	// Phase 3: find the run that carries our token.
	emit("correlate", "waiting for run to appear")
	if err := o.correlate(ctx, run, dispatchedAt, logger); err != nil {
		return nil, err
	}
	logger.Info("run discovered", slog.String("run_id", run.ID()))
	emit("monitor", "run "+run.ID()+" discovered")

	// Phase 4: poll until terminal.
	report, err := o.monitor(ctx, run, logger, emit)
	if err != nil {
		return nil, err
	}

	// Phase 5: retrieve. Decryption is not interrupted by cancellation:
	// a half-decrypted artifact is worthless and the remote work is
	// already paid for.
	retrieveCtx := context.WithoutCancel(ctx)

	emit("retrieve", "downloading artifact")
	encOut, err := o.store.Download(retrieveCtx, outRef, jobDir)
	if err != nil {
		return nil, o.failure(backend.CategoryRetrieve, "download", run,
			fmt.Errorf("run %s succeeded but artifact download failed (see %s): %w", run.ID(), report.URL, err))
	}

	emit("retrieve", "decrypting artifact")
	decPath := filepath.Join(jobDir, filepath.Base(job.OutputPath))
	if err := o.cipher.Decrypt(retrieveCtx, encOut, decPath); err != nil {
		return nil, o.failure(backend.CategoryRetrieve, "decrypt", run, err)
	}

	if err := o.cipher.RestoreMetadata(retrieveCtx, job.InputPath, decPath); err != nil {
		// The artifact is playable without its metadata; report and move on.
		logger.Warn("metadata restore failed", slog.Any("error", err))
	}

	final, err := o.ws.Publish(decPath, filepath.Base(job.OutputPath))
	if err != nil {
		return nil, o.failure(backend.CategoryRetrieve, "publish", run, err)
	}

	logger.Info("remote job complete", slog.String("artifact", final))
	return &backend.Result{ArtifactPath: final, Segments: 1}, nil
}

// correlate polls the run listing until exactly one run carries the token.
func (o *Orchestrator) correlate(ctx context.Context, run *Run, dispatchedAt time.Time, logger *slog.Logger) error {
	// The listing window opens before the dispatch time to absorb clock
	// skew between this host and the runner.
	since := dispatchedAt.Add(-o.cfg.CorrelationSkew)
	deadline := dispatchedAt.Add(o.cfg.CorrelationTimeout)

	ticker := time.NewTicker(o.cfg.CorrelationInterval)
	defer ticker.Stop()

	for {
		runs, err := o.runner.ListRecentRuns(ctx, since)
		if err != nil {
			// Listing errors during correlation are transient; the
			// deadline bounds the total wait.
			logger.Debug("run listing failed, retrying", slog.Any("error", err))
		} else {
			var matches []RunSummary
			for _, r := range runs {
				if strings.Contains(r.Label, run.Token()) {
					matches = append(matches, r)
				}
			}
			switch len(matches) {
			case 0:
				// Not visible yet; the listing is eventually consistent.
			case 1:
				return run.Discover(matches[0].ID)
			default:
				// Two runs with the same 122-bit token means something
				// is badly wrong. Monitoring an arbitrary pick could
				// report the wrong job's outcome, so fail instead.
				return o.failure(backend.CategoryCorrelationAmbiguous, "correlate", run,
					fmt.Errorf("%d runs match token", len(matches)))
			}
		}

		if time.Now().After(deadline) {
			return o.failure(backend.CategoryCorrelationTimeout, "correlate", run,
				fmt.Errorf("no run appeared within %v; the job may still be executing remotely", o.cfg.CorrelationTimeout))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("correlation aborted: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// monitor polls the run status sequentially until it finishes. Transient
// poll errors are absorbed up to a consecutive-failure budget with capped
// exponential backoff; a successful poll resets the budget.
func (o *Orchestrator) monitor(ctx context.Context, run *Run, logger *slog.Logger, emit func(string, string)) (StatusReport, error) {
	deadline := time.Now().Add(o.cfg.MonitorTimeout)
	budget := o.cfg.MonitorFailureBudget
	if budget <= 0 {
		budget = 5
	}

	backoffCap := o.cfg.MonitorBackoffCap
	if backoffCap <= 0 {
		backoffCap = 2 * time.Minute
	}

	failures := 0
	backoff := o.cfg.PollInterval

	for {
		pollCtx, cancel := context.WithTimeout(ctx, o.cfg.PollTimeout)
		report, err := o.runner.GetRunStatus(pollCtx, run.ID())
		cancel()

		if ctx.Err() != nil {
			o.cancelRun(run, logger)
			return StatusReport{}, fmt.Errorf("monitoring aborted: %w", ctx.Err())
		}

		if err != nil {
			failures++
			logger.Warn("status poll failed",
				slog.Int("consecutive_failures", failures),
				slog.Int("budget", budget),
				slog.Any("error", err),
			)
			if failures >= budget {
				run.Transition(StateLost)
				// Lost is not failed: the remote job may well still
				// be running or even have succeeded.
				return StatusReport{}, o.failure(backend.CategoryMonitoringLost, "monitor", run,
					fmt.Errorf("%d consecutive poll failures: %w", failures, err))
			}

			backoff = min(backoff*2, backoffCap)
			if err := sleepCtx(ctx, backoff); err != nil {
				o.cancelRun(run, logger)
				return StatusReport{}, fmt.Errorf("monitoring aborted: %w", err)
			}
			continue
		}

		failures = 0
		backoff = o.cfg.PollInterval

		run.Transition(StateRunning)
		run.ObserveStep(report.Step)
		if report.Step != "" {
			emit("monitor", "remote step: "+report.Step)
		}

		if report.Finished() {
			if report.Succeeded() {
				run.Transition(StateSucceeded)
				return report, nil
			}
			run.Transition(StateFailed)
			return StatusReport{}, o.failure(backend.CategoryRemoteJobFailed, "monitor", run,
				fmt.Errorf("run concluded %s (last step %q, see %s)", report.Conclusion, run.Step(), report.URL))
		}

		if time.Now().After(deadline) {
			run.Transition(StateLost)
			return StatusReport{}, o.failure(backend.CategoryMonitoringLost, "monitor", run,
				fmt.Errorf("run still not terminal after %v", o.cfg.MonitorTimeout))
		}

		if err := sleepCtx(ctx, o.cfg.PollInterval); err != nil {
			o.cancelRun(run, logger)
			return StatusReport{}, fmt.Errorf("monitoring aborted: %w", err)
		}
	}
}

// cancelRun makes a best-effort attempt to stop the remote run after local
// cancellation. It runs on a fresh context: the caller's is already dead.
func (o *Orchestrator) cancelRun(run *Run, logger *slog.Logger) {
	if run.ID() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch err := o.runner.CancelRun(ctx, run.ID()); {
	case err == nil:
		logger.Info("remote run cancelled", slog.String("run_id", run.ID()))
	case errors.Is(err, ErrCancelUnsupported):
		logger.Info("runner does not support cancellation, run left to finish")
	default:
		logger.Warn("cancel request failed", slog.Any("error", err))
	}
}

// cleanup removes the uploaded input exchange. Best effort only: a cleanup
// failure never turns a finished job into a failed one.
func (o *Orchestrator) cleanup(ref storage.Ref) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := o.store.Remove(ctx, ref); err != nil {
		o.logger.Warn("artifact cleanup failed",
			slog.String("ref", ref.String()),
			slog.Any("error", err),
		)
	}
}

// failure builds a categorized Failure carrying the run's identifiers.
func (o *Orchestrator) failure(category backend.Category, step string, run *Run, err error) *backend.Failure {
	return &backend.Failure{
		Category: category,
		Token:    run.Token(),
		RunID:    run.ID(),
		Step:     step,
		ExitCode: -1,
		Err:      err,
	}
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
