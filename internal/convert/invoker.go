package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"modelconv/internal/common/fsutil"
	"modelconv/internal/shape"
)

// Target formats the workflow converts to, and the artifact filename each
// format's tool writes into the output directory.
const (
	FormatONNX     = "onnx"
	FormatOpenVINO = "openvino"
)

var defaultArtifacts = map[string]string{
	FormatONNX:     "model.onnx",
	FormatOpenVINO: "model.xml",
}

// Job is one conversion request. It is consumed once; rerunning an identical
// job overwrites the prior artifact deterministically. Concurrent jobs must
// use distinct output directories.
type Job struct {
	ID        string        `json:"id,omitempty"`
	Source    string        `json:"source"`
	Format    string        `json:"format"`
	Spec      shape.Spec    `json:"spec"`
	OutputDir string        `json:"output_dir"`
	Artifact  string        `json:"artifact,omitempty"` // filename inside OutputDir; defaulted per format
	ExtraArgs []string      `json:"extra_args,omitempty"`
	Timeout   time.Duration `json:"-"`
}

// Result reports a finished conversion. Diagnostic carries the tool's stderr
// tail verbatim on failure.
type Result struct {
	OK         bool          `json:"ok"`
	Artifact   string        `json:"artifact,omitempty"`
	Diagnostic string        `json:"diagnostic,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Invoker runs the external conversion tool. Zero value is not usable; use
// NewInvoker.
type Invoker struct {
	Bin         string // converter binary, e.g. optimum-cli
	InspectBin  string // optional model inspector binary
	DockerImage string // if set, wrap invocations in `docker run`
	Workspace   string // bind-mount root for docker mode; defaults to cwd

	log zerolog.Logger
}

// NewInvoker constructs an Invoker for the given converter binary.
func NewInvoker(bin string, log zerolog.Logger) *Invoker {
	return &Invoker{Bin: bin, log: log}
}

// stderr tail bound kept small; converters can be extremely chatty.
const diagnosticTailBytes = 4096

// Run invokes the converter for job and returns its outcome. The context
// plus job.Timeout bound the external process; on timeout any partial
// artifact is removed and a timeout error returned. The error is one of the
// typed errors in this package (tool, missing-artifact, timeout) or a plain
// error for local failures such as an unknown format.
func (iv *Invoker) Run(ctx context.Context, job Job) (Result, error) {
	artifact, err := iv.artifactPath(job)
	if err != nil {
		return Result{}, err
	}
	if job.Source == "" {
		return Result{}, fmt.Errorf("job has no source model path")
	}
	if len(job.Spec.Tensors) == 0 {
		return Result{}, fmt.Errorf("job has no resolved shape spec")
	}
	if err := fsutil.EnsureDir(job.OutputDir); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	args := []string{"--model", job.Source, "--format", job.Format, "--output-dir", job.OutputDir}
	for _, clause := range job.Spec.Clauses() {
		args = append(args, "--shape", clause)
	}
	args = append(args, job.ExtraArgs...)

	cmd := iv.command(ctx, iv.Bin, args)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = iv.log.With().Str("stream", "stdout").Logger()

	iv.log.Info().
		Str("job", job.ID).
		Str("source", job.Source).
		Str("format", job.Format).
		Strs("shapes", job.Spec.Clauses()).
		Msg("conversion start")

	start := time.Now()
	runErr := cmd.Run()
	dur := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		// Partial output is invalid and must not be reused.
		_ = os.Remove(artifact)
		iv.log.Warn().Str("job", job.ID).Dur("dur", dur).Msg("conversion timeout")
		return Result{Duration: dur}, ErrTimeout(job.Timeout)
	}
	if runErr != nil {
		diag := tail(stderr.Bytes(), diagnosticTailBytes)
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			iv.log.Error().Str("job", job.ID).Int("exit", exitErr.ExitCode()).Msg("conversion failed")
			return Result{Diagnostic: diag, Duration: dur}, ErrTool(exitErr.ExitCode(), diag)
		}
		return Result{Duration: dur}, fmt.Errorf("run converter: %w", runErr)
	}
	if !fsutil.PathExists(artifact) {
		iv.log.Error().Str("job", job.ID).Str("artifact", artifact).Msg("artifact missing after success exit")
		return Result{Duration: dur}, ErrMissingArtifact(artifact)
	}

	iv.log.Info().Str("job", job.ID).Str("artifact", artifact).Dur("dur", dur).Msg("conversion done")
	return Result{OK: true, Artifact: artifact, Duration: dur}, nil
}

// Inspect runs the configured model inspector against an artifact and
// returns its combined output. Used for ad-hoc debugging of converted models.
func (iv *Invoker) Inspect(ctx context.Context, modelPath string) (string, error) {
	if iv.InspectBin == "" {
		return "", fmt.Errorf("no inspector binary configured")
	}
	cmd := iv.command(ctx, iv.InspectBin, []string{"inspect", "model", modelPath, "--mode=onnx"})
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("inspect %s: %w", modelPath, err)
	}
	return string(out), nil
}

func (iv *Invoker) artifactPath(job Job) (string, error) {
	name := job.Artifact
	if name == "" {
		def, ok := defaultArtifacts[job.Format]
		if !ok {
			return "", fmt.Errorf("unknown target format: %q", job.Format)
		}
		name = def
	}
	return filepath.Join(job.OutputDir, name), nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(bytes.TrimSpace(b))
}
