// Package pipeline sequences the workflow: resolve static shapes, invoke
// the external converter, generate or load the serving config, and validate
// shape compatibility before anything reaches the serving engine.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"modelconv/internal/config"
	"modelconv/internal/convert"
	"modelconv/internal/report"
	"modelconv/internal/servingcfg"
	"modelconv/internal/shape"
)

// RunRequest describes one end-to-end workflow run. Shapes come either from
// a model preset (Model + Batch + SeqLen) or from explicit Clauses.
type RunRequest struct {
	Model         string   `json:"model"`
	Source        string   `json:"source"`
	Format        string   `json:"format"`
	Batch         int      `json:"batch"`
	SeqLen        int      `json:"seq_len"`
	Clauses       string   `json:"clauses,omitempty"`
	OutputDir     string   `json:"output_dir,omitempty"`
	ServingConfig string   `json:"serving_config,omitempty"` // path; generated when empty
	WildcardBatch bool     `json:"wildcard_batch"`
	ExtraArgs     []string `json:"extra_args,omitempty"`
	TimeoutSec    int      `json:"timeout_sec,omitempty"`
}

// JobStatus is the coordinator's view of one run. Terminal states are
// passed, failed and error.
type JobStatus struct {
	ID         string              `json:"id"`
	Model      string              `json:"model"`
	Format     string              `json:"format"`
	State      string              `json:"state"`
	Error      string              `json:"error,omitempty"`
	Result     *convert.Result     `json:"result,omitempty"`
	Report     *servingcfg.Report  `json:"report,omitempty"`
	ConfigPath string              `json:"config_path,omitempty"`
	Started    time.Time           `json:"started"`
	// Finished is nil while the job is running; omitempty is ineffective on
	// a plain time.Time.
	Finished *time.Time `json:"finished,omitempty"`
}

const (
	StateRunning   = "running"
	StateConverted = "converted"
	StatePassed    = "passed"
	StateFailed    = "failed"
	StateError     = "error"
)

// Coordinator runs workflows and keeps an in-memory table of job outcomes
// for the daemon. Jobs with distinct output directories may run
// concurrently; the table is the only shared state.
type Coordinator struct {
	cfg config.Config
	inv *convert.Invoker
	csv *report.CSVWriter
	log zerolog.Logger

	mu    sync.Mutex
	jobs  map[string]*JobStatus
	order []string
}

// New builds a Coordinator from the effective config.
func New(cfg config.Config, log zerolog.Logger) *Coordinator {
	inv := convert.NewInvoker(cfg.ConverterBin, log)
	inv.InspectBin = cfg.InspectorBin
	inv.DockerImage = cfg.DockerImage
	inv.Workspace = cfg.Workspace
	c := &Coordinator{cfg: cfg, inv: inv, log: log, jobs: make(map[string]*JobStatus)}
	if cfg.ReportCSV != "" {
		c.csv = report.NewCSVWriter(cfg.ReportCSV)
	}
	return c
}

// Invoker exposes the underlying tool invoker (used by the CLI for ad-hoc
// convert/inspect without job bookkeeping).
func (c *Coordinator) Invoker() *convert.Invoker { return c.inv }

// ResolveShapes produces the input and output shape specs for a request.
// Output spec is empty when explicit clauses are given; clauses describe
// inputs only.
func (c *Coordinator) ResolveShapes(req RunRequest) (inputs, outputs shape.Spec, err error) {
	if strings.TrimSpace(req.Clauses) != "" {
		tensors, err := shape.ParseClauses(req.Clauses)
		if err != nil {
			return shape.Spec{}, shape.Spec{}, err
		}
		in, err := shape.SpecFromTensors(tensors)
		return in, shape.Spec{}, err
	}
	sig, err := shape.Preset(req.Model, req.SeqLen)
	if err != nil {
		return shape.Spec{}, shape.Spec{}, err
	}
	in, err := shape.Resolve(req.Batch, sig.Inputs)
	if err != nil {
		return shape.Spec{}, shape.Spec{}, err
	}
	out, err := shape.Resolve(req.Batch, sig.Outputs)
	if err != nil {
		return shape.Spec{}, shape.Spec{}, err
	}
	return in, out, nil
}

// Validate cross-checks a spec against a serving config and counts the
// verdict. Pure apart from the metric.
func (c *Coordinator) Validate(spec shape.Spec, cfg servingcfg.ModelConfig) servingcfg.Report {
	r := servingcfg.Validate(spec, cfg)
	validationsTotal.WithLabelValues(verdict(r.Pass)).Inc()
	return r
}

// Run executes the full workflow for req. The returned status is terminal;
// it is also retained in the job table. The error mirrors status.Error so
// CLI callers can exit non-zero without re-inspecting the table.
func (c *Coordinator) Run(ctx context.Context, req RunRequest) (JobStatus, error) {
	id := uuid.NewString()
	status := &JobStatus{ID: id, Model: req.Model, Format: req.Format, State: StateRunning, Started: time.Now()}
	c.remember(status)

	inSpec, outSpec, err := c.ResolveShapes(req)
	if err != nil {
		return c.finish(status, StateError, fmt.Errorf("resolve shapes: %w", err))
	}

	timeout := time.Duration(req.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(c.cfg.TimeoutSec) * time.Second
	}
	outDir := req.OutputDir
	if outDir == "" {
		outDir = filepath.Join("converted", sanitizeModelID(req.Model)+"-"+req.Format)
	}

	job := convert.Job{
		ID:        id,
		Source:    req.Source,
		Format:    req.Format,
		Spec:      inSpec,
		OutputDir: outDir,
		ExtraArgs: req.ExtraArgs,
		Timeout:   timeout,
	}
	res, err := c.inv.Run(ctx, job)
	c.update(status, func(st *JobStatus) { st.Result = &res })
	conversionsTotal.WithLabelValues(req.Format, outcome(err)).Inc()
	if res.Duration > 0 {
		conversionDuration.WithLabelValues(req.Format).Observe(res.Duration.Seconds())
	}
	if err != nil {
		return c.finish(status, StateError, err)
	}
	c.update(status, func(st *JobStatus) { st.State = StateConverted })

	scfg, cfgPath, err := c.servingConfig(req, inSpec, outSpec, res.Artifact)
	if err != nil {
		return c.finish(status, StateError, err)
	}

	rep := servingcfg.Validate(inSpec, scfg)
	if len(outSpec.Tensors) > 0 {
		rep.Checks = append(rep.Checks, servingcfg.CheckTensors(outSpec.Tensors, scfg.Outputs)...)
		rep.Pass = true
		for _, chk := range rep.Checks {
			if !chk.OK {
				rep.Pass = false
				break
			}
		}
	}
	validationsTotal.WithLabelValues(verdict(rep.Pass)).Inc()
	// rep is complete; publish it and the config path in one step.
	c.update(status, func(st *JobStatus) {
		st.ConfigPath = cfgPath
		st.Report = &rep
	})

	final := StatePassed
	if !rep.Pass {
		final = StateFailed
	}
	st, _ := c.finish(status, final, nil)
	if !rep.Pass {
		return st, fmt.Errorf("serving config validation failed: %d tensor(s) mismatched", len(rep.Failures()))
	}
	return st, nil
}

// servingConfig loads the user-supplied config or generates one into the
// model repo next to the converted artifact.
func (c *Coordinator) servingConfig(req RunRequest, in, out shape.Spec, artifact string) (servingcfg.ModelConfig, string, error) {
	if req.ServingConfig != "" {
		cfg, err := servingcfg.Load(req.ServingConfig)
		return cfg, req.ServingConfig, err
	}
	gen := servingcfg.FromSpec(sanitizeModelID(req.Model), platformFor(req.Format), in, out, req.WildcardBatch)
	path, err := servingcfg.WriteModelRepo(c.cfg.ModelRepo, gen, artifact)
	if err != nil {
		return servingcfg.ModelConfig{}, "", fmt.Errorf("write serving config: %w", err)
	}
	return gen, path, nil
}

// Jobs returns a snapshot of all jobs, oldest first.
func (c *Coordinator) Jobs() []JobStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]JobStatus, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.jobs[id])
	}
	return out
}

// Job returns one job by id.
func (c *Coordinator) Job(id string) (JobStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	return *st, true
}

// Ready reports daemon readiness.
func (c *Coordinator) Ready() bool { return true }

func (c *Coordinator) remember(st *JobStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs[st.ID] = st
	c.order = append(c.order, st.ID)
}

// update applies fn to a remembered status under the table lock. Every write
// to a status after remember goes through here; Jobs/Job copy the same
// structs under the same lock.
func (c *Coordinator) update(st *JobStatus, fn func(*JobStatus)) {
	c.mu.Lock()
	fn(st)
	c.mu.Unlock()
}

func (c *Coordinator) finish(st *JobStatus, state string, err error) (JobStatus, error) {
	now := time.Now()
	c.mu.Lock()
	st.State = state
	if err != nil {
		st.Error = err.Error()
	}
	st.Finished = &now
	snapshot := *st
	c.mu.Unlock()

	c.log.Info().
		Str("job", snapshot.ID).
		Str("model", snapshot.Model).
		Str("state", snapshot.State).
		Msg("workflow finished")
	c.appendCSV(snapshot)
	return snapshot, err
}

func (c *Coordinator) appendCSV(st JobStatus) {
	if c.csv == nil {
		return
	}
	rec := report.Record{
		JobID:   st.ID,
		Model:   st.Model,
		Format:  st.Format,
		Verdict: st.State,
		Detail:  st.Error,
	}
	if st.Finished != nil {
		rec.Time = *st.Finished
	}
	if st.Result != nil {
		rec.Artifact = st.Result.Artifact
		rec.Duration = st.Result.Duration
	}
	if err := c.csv.Append(rec); err != nil {
		c.log.Warn().Err(err).Msg("append csv report")
	}
}

// sanitizeModelID makes a hub id usable as a directory / serving model name;
// the serving engine rejects slashes in model names.
func sanitizeModelID(id string) string {
	return strings.ReplaceAll(id, "/", "-")
}

func platformFor(format string) string {
	switch format {
	case convert.FormatONNX:
		return "onnxruntime_onnx"
	case convert.FormatOpenVINO:
		return "openvino"
	default:
		return format
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case convert.IsTimeout(err):
		return "timeout"
	case convert.IsToolError(err):
		return "tool_error"
	case convert.IsMissingArtifact(err):
		return "missing_artifact"
	default:
		return "error"
	}
}

func verdict(pass bool) string {
	if pass {
		return "pass"
	}
	return "fail"
}
