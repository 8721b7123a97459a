// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CommandRunner abstracts process execution for testing.
type CommandRunner interface {
	Output(ctx context.Context, name string, args []string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args []string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// FFProbe resolves clip durations via ffprobe. ffprobe reads remote URLs
// directly, so no download is needed to learn a clip's length.
type FFProbe struct {
	Bin    string
	Runner CommandRunner
}

// NewFFProbe creates a prober using the given binary ("ffprobe" when empty).
func NewFFProbe(bin string) *FFProbe {
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFProbe{Bin: bin, Runner: execRunner{}}
}

var _ Prober = (*FFProbe)(nil)

func (p *FFProbe) ProbeDuration(ctx context.Context, url string) (float64, error) {
	runner := p.Runner
	if runner == nil {
		runner = execRunner{}
	}
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		url,
	}
	out, err := runner.Output(ctx, p.Bin, args)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", url, err)
	}
	raw := strings.TrimSpace(string(out))
	dur, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse duration %q: %w", url, raw, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("ffprobe %s: non-positive duration %f", url, dur)
	}
	return dur, nil
}
