package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"
)

// baseArgs are prepended to every generated ffmpeg command.
var baseArgs = []string{"-hide_banner", "-loglevel", "error", "-stats", "-y"}

// BuildRequest describes one command-building operation.
type BuildRequest struct {
	InputPath  string
	OutputPath string

	// Template is the ordered ffmpeg output-argument template, possibly
	// containing {placeholder} references resolved against Params.
	Template []string
	Params   map[string]string

	// InputSize and SizeLimit drive the split decision. A non-positive
	// SizeLimit disables splitting.
	InputSize int64
	SizeLimit int64

	// SegmentDir receives per-segment outputs when the input is cut.
	SegmentDir string
}

// Plan is the ordered result of a build: the commands to run, and the
// segment layout when the input had to be cut.
type Plan struct {
	Specs          []CommandSpec
	Segments       []Segment
	SegmentOutputs []string
}

// Split reports whether the plan cuts the input into segments.
func (p *Plan) Split() bool {
	return len(p.Segments) > 0
}

// Builder builds validated transcode command plans.
type Builder struct {
	ffmpegPath string
	prober     *Prober
	logger     *slog.Logger
}

// NewBuilder creates a command builder.
func NewBuilder(ffmpegPath string, prober *Prober, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{ffmpegPath: ffmpegPath, prober: prober, logger: logger}
}

// Build resolves the template and decides whether the input must be cut to
// satisfy the size limit.
//
// When the input fits, the plan holds exactly one CommandSpec: the resolved
// template between `-i input` and the output path. When it does not, the
// plan holds one copy-codec trim command per segment, in ordinal order, with
// every cut snapped to a keyframe so the segments reassemble losslessly.
// Building is pure apart from the read-only keyframe probe.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*Plan, error) {
	resolved, err := ResolveTemplate(req.Template, req.Params)
	if err != nil {
		return nil, err
	}

	if req.SizeLimit <= 0 || req.InputSize <= req.SizeLimit {
		spec, err := b.singleSpec(resolved, req.InputPath, req.OutputPath)
		if err != nil {
			return nil, err
		}
		return &Plan{Specs: []CommandSpec{spec}}, nil
	}

	return b.splitPlan(ctx, req)
}

// singleSpec assembles the unsplit command: base args, input, resolved
// template, output.
func (b *Builder) singleSpec(resolved []string, input, output string) (CommandSpec, error) {
	args := append([]string(nil), baseArgs...)
	args = append(args, "-i", input)
	args = append(args, resolved...)
	args = append(args, output)
	return NewCommandSpec(b.ffmpegPath, args, input, output)
}

// splitPlan probes the input and produces one keyframe-aligned stream-copy
// trim command per segment.
func (b *Builder) splitPlan(ctx context.Context, req BuildRequest) (*Plan, error) {
	info, err := b.prober.Probe(ctx, req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("probing input: %w", err)
	}
	if info.Duration <= 0 {
		return nil, fmt.Errorf("input %s has unknown duration, cannot split", req.InputPath)
	}

	keyframes, err := b.prober.KeyframeIndex(ctx, req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("indexing keyframes: %w", err)
	}

	n := SegmentCount(req.InputSize, req.SizeLimit)
	segments, err := PlanSegments(info.Duration, n, keyframes)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("planned lossless cut",
		slog.String("input", req.InputPath),
		slog.Int("segments", len(segments)),
		slog.Duration("total", info.Duration),
	)

	ext := filepath.Ext(req.InputPath)
	plan := &Plan{Segments: segments}
	for _, seg := range segments {
		out := filepath.Join(req.SegmentDir, fmt.Sprintf("segment-%03d%s", seg.Index, ext))
		spec, err := b.trimSpec(req.InputPath, out, seg)
		if err != nil {
			return nil, err
		}
		plan.Specs = append(plan.Specs, spec)
		plan.SegmentOutputs = append(plan.SegmentOutputs, out)
	}
	return plan, nil
}

// trimSpec builds the copy-codec remux command for one segment. No media
// stream is re-encoded; the cut relies on the segment start being a
// keyframe.
func (b *Builder) trimSpec(input, output string, seg Segment) (CommandSpec, error) {
	args := append([]string(nil), baseArgs...)
	args = append(args,
		"-ss", formatSeconds(seg.Start),
		"-t", formatSeconds(seg.Duration),
		"-i", input,
		"-map", "0",
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		output,
	)
	return NewCommandSpec(b.ffmpegPath, args, input, output)
}

// ConcatSpec builds the stream-copy concatenation command that reassembles
// segment outputs, listed in listPath, into output.
func (b *Builder) ConcatSpec(listPath, output string) (CommandSpec, error) {
	args := append([]string(nil), baseArgs...)
	args = append(args,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		output,
	)
	return NewCommandSpec(b.ffmpegPath, args, listPath, output)
}

// formatSeconds renders a duration as fractional seconds for -ss/-t.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
