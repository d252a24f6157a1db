package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ProbeInfo is the simplified container-level view of an input file.
type ProbeInfo struct {
	FormatName string        `json:"format_name"`
	Duration   time.Duration `json:"duration"`
	SizeBytes  int64         `json:"size_bytes"`
	BitRate    int64         `json:"bit_rate"`
	HasVideo   bool          `json:"has_video"`
}

// probeResult mirrors the subset of ffprobe JSON output we consume.
type probeResult struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
}

// packetResult mirrors ffprobe packet listing output.
type packetResult struct {
	Packets []struct {
		PtsTime string `json:"pts_time"`
		DtsTime string `json:"dts_time"`
		Flags   string `json:"flags"`
	} `json:"packets"`
}

// Prober handles ffprobe operations.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new media prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe reads container format information for a local file.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	info := &ProbeInfo{FormatName: result.Format.FormatName}

	if result.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(result.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	if result.Format.Size != "" {
		if size, err := strconv.ParseInt(result.Format.Size, 10, 64); err == nil {
			info.SizeBytes = size
		}
	}
	if result.Format.BitRate != "" {
		if br, err := strconv.ParseInt(result.Format.BitRate, 10, 64); err == nil {
			info.BitRate = br
		}
	}
	for _, s := range result.Streams {
		if s.CodecType == "video" {
			info.HasVideo = true
		}
	}

	return info, nil
}

// KeyframeIndex returns the keyframe timestamps of the first video stream in
// ascending order. This is a read-only probe; nothing is decoded beyond
// packet headers.
func (p *Prober) KeyframeIndex(ctx context.Context, path string) ([]time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-select_streams", "v:0",
		"-show_entries", "packet=pts_time,dts_time,flags",
		path,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("keyframe index timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe packet listing failed: %w", err)
	}

	var result packetResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe packets: %w", err)
	}

	var keyframes []time.Duration
	for _, pkt := range result.Packets {
		if !strings.Contains(pkt.Flags, "K") {
			continue
		}
		ts := pkt.PtsTime
		if ts == "" || ts == "N/A" {
			ts = pkt.DtsTime
		}
		if ts == "" || ts == "N/A" {
			continue
		}
		secs, err := strconv.ParseFloat(ts, 64)
		if err != nil {
			continue
		}
		keyframes = append(keyframes, time.Duration(secs*float64(time.Second)))
	}

	if len(keyframes) == 0 {
		return nil, fmt.Errorf("no keyframes found in %s", path)
	}

	sort.Slice(keyframes, func(i, j int) bool { return keyframes[i] < keyframes[j] })
	return keyframes, nil
}
