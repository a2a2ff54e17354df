package snapring

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ImageResult is the outcome of one external imaging call. The core treats
// the tool as a black box: exit status plus produced file paths.
type ImageResult struct {
	ExitCode  int
	ImagePath string
	HashPath  string
	Output    string
}

// Imager is the boundary to the external disk-imaging tool.
type Imager interface {
	CreateFull(ctx context.Context, source, imagePath string) (*ImageResult, error)
	CreateDifferential(ctx context.Context, source, imagePath, baselineHash string) (*ImageResult, error)
}

// Verifier is the optional post-backup verification collaborator. A
// verification failure is advisory and never rolls back state.
type Verifier interface {
	Verify(ctx context.Context, imagePath string) error
}

// CommandImager shells out to the imaging executable. The argument surface
// mirrors the Drive Snapshot command line: -h<hash> selects a differential
// against the baseline, -W suppresses keypress prompts, -Go auto-exits on
// success, -T tests an image.
type CommandImager struct {
	ExePath string
	Timeout time.Duration
}

func NewCommandImager(exePath string) *CommandImager {
	return &CommandImager{
		ExePath: exePath,
		Timeout: 2 * time.Hour,
	}
}

func (c *CommandImager) CreateFull(ctx context.Context, source, imagePath string) (*ImageResult, error) {
	zlog.Info("starting full backup", zap.String("source", source), zap.String("image", imagePath))
	res, err := c.run(ctx, []string{source, imagePath})
	if res != nil {
		res.ImagePath = imagePath
		// The tool drops the baseline hash next to a full image.
		res.HashPath = hashPathFor(imagePath)
	}
	return res, err
}

func (c *CommandImager) CreateDifferential(ctx context.Context, source, imagePath, baselineHash string) (*ImageResult, error) {
	zlog.Info("starting differential backup",
		zap.String("source", source),
		zap.String("image", imagePath),
		zap.String("baseline_hash", baselineHash),
	)
	res, err := c.run(ctx, []string{source, imagePath, "-h" + baselineHash})
	if res != nil {
		res.ImagePath = imagePath
		res.HashPath = baselineHash
	}
	return res, err
}

// Verify asks the tool to test an existing image.
func (c *CommandImager) Verify(ctx context.Context, imagePath string) error {
	zlog.Info("verifying image", zap.String("image", imagePath))
	res, err := c.run(ctx, []string{"-T" + imagePath})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("image verification exited with status %d", res.ExitCode)
	}
	return nil
}

func (c *CommandImager) run(ctx context.Context, args []string) (*ImageResult, error) {
	args = append(args, "-W", "-Go")

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	zlog.Debug("imaging command", zap.String("exe", c.ExePath), zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, c.ExePath, args...)
	raw, err := cmd.CombinedOutput()
	output := string(raw)
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			zlog.Info("imager: " + line)
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		return &ImageResult{ExitCode: -1, Output: output}, fmt.Errorf("imaging timed out after %s", timeout)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// Non-zero exit is a result, not a spawn failure.
			return &ImageResult{ExitCode: exitErr.ExitCode(), Output: output}, nil
		}
		return nil, fmt.Errorf("run imaging tool: %w", err)
	}

	return &ImageResult{ExitCode: 0, Output: output}, nil
}

func hashPathFor(imagePath string) string {
	// Only the file name's extension counts; a dot in a directory name
	// must not be truncated.
	if ext := filepath.Ext(imagePath); ext != "" {
		return strings.TrimSuffix(imagePath, ext) + ".hsh"
	}
	return imagePath + ".hsh"
}
