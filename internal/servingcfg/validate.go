package servingcfg

import (
	"fmt"
	"strings"

	"modelconv/internal/shape"
)

// TensorCheck is one per-tensor verdict. Want holds the conversion-time
// dims, Got the serving-side declaration; either may be empty when the
// tensor is missing on that side.
type TensorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Want   []int  `json:"want,omitempty"`
	Got    []int  `json:"got,omitempty"`
}

// Report aggregates all per-tensor checks. It is complete: validation never
// stops at the first mismatch, so one pass surfaces every problem.
type Report struct {
	Model  string        `json:"model,omitempty"`
	Checks []TensorCheck `json:"checks"`
	Pass   bool          `json:"pass"`
}

// Failures returns only the failing checks.
func (r Report) Failures() []TensorCheck {
	var out []TensorCheck
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}

// Validate cross-checks a resolved shape spec against the serving config's
// declared inputs. The engine performs an internal shape-retrieval call for
// any unresolved or mismatched non-batch dimension and that call faults for
// this model family, so every such case is reported here, pre-deployment.
//
// Rules: non-batch dims must match exactly; the batch position may differ,
// and -1 is tolerated only there; tensors missing on either side fail.
func Validate(spec shape.Spec, cfg ModelConfig) Report {
	r := Report{Model: cfg.Name, Checks: CheckTensors(spec.Tensors, cfg.Inputs)}
	r.Pass = true
	for _, c := range r.Checks {
		if !c.OK {
			r.Pass = false
			break
		}
	}
	return r
}

// CheckTensors compares conversion-time tensors against serving-side
// declarations and returns one check per tensor name seen on either side.
// Spec order first, then serving-only extras in declaration order.
func CheckTensors(want []shape.Tensor, got []TensorConfig) []TensorCheck {
	byName := make(map[string]TensorConfig, len(got))
	for _, t := range got {
		byName[t.Name] = t
	}
	checks := make([]TensorCheck, 0, len(want))
	seen := make(map[string]bool, len(want))
	for _, w := range want {
		seen[w.Name] = true
		g, ok := byName[w.Name]
		if !ok {
			checks = append(checks, TensorCheck{
				Name: w.Name, Reason: "missing from serving config", Want: w.Dims,
			})
			continue
		}
		checks = append(checks, checkDims(w, g))
	}
	for _, g := range got {
		if seen[g.Name] {
			continue
		}
		checks = append(checks, TensorCheck{
			Name: g.Name, Reason: "missing from shape spec", Got: g.Dims,
		})
	}
	return checks
}

func checkDims(w shape.Tensor, g TensorConfig) TensorCheck {
	c := TensorCheck{Name: w.Name, Want: w.Dims, Got: g.Dims}
	if len(g.Dims) != len(w.Dims) {
		c.Reason = fmt.Sprintf("rank mismatch: spec has %d dims, serving config declares %d", len(w.Dims), len(g.Dims))
		return c
	}
	var reasons []string
	for i, gd := range g.Dims {
		if i == 0 {
			// Batch position: wildcard or a structurally different batch
			// is the serving side's business.
			if gd == -1 || gd > 0 {
				continue
			}
			reasons = append(reasons, fmt.Sprintf("invalid batch dimension %d", gd))
			continue
		}
		if gd == -1 {
			reasons = append(reasons, fmt.Sprintf("wildcard at non-batch position %d", i))
			continue
		}
		if gd != w.Dims[i] {
			reasons = append(reasons, fmt.Sprintf("dim %d mismatch: converted with %d, serving declares %d", i, w.Dims[i], gd))
		}
	}
	if len(reasons) > 0 {
		c.Reason = strings.Join(reasons, "; ")
		return c
	}
	c.OK = true
	return c
}
