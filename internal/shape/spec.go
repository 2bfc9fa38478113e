package shape

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Tensor is one named tensor with fully resolved dimensions.
// Dims[0] is the batch dimension.
type Tensor struct {
	// Tensor name as the converter and serving engine know it.
	// example: input_ids
	Name string `json:"name" example:"input_ids"`
	// Concrete dimensions, batch first. Never contains -1 once resolved.
	// example: [1,100]
	Dims []int `json:"dims" example:"1,100"`
	// Optional datatype token carried along for config generation.
	// example: INT64
	DType string `json:"dtype,omitempty" example:"INT64"`
}

// Spec is an ordered, immutable set of resolved tensors for one conversion.
type Spec struct {
	Batch   int      `json:"batch"`
	Tensors []Tensor `json:"tensors"`
}

// Request describes one tensor before resolution: its non-batch dimensions.
type Request struct {
	Name  string `json:"name"`
	Dims  []int  `json:"dims"`
	DType string `json:"dtype,omitempty"`
}

// invalidDimensionError reports a non-positive or explicitly dynamic (-1)
// dimension handed to the resolver. The serving engine for this model family
// faults on any unresolved dimension, so resolution must reject them up front.
type invalidDimensionError struct {
	tensor string
	dim    int
}

func (e invalidDimensionError) Error() string {
	if e.tensor == "" {
		return fmt.Sprintf("invalid batch size %d: must be a positive integer", e.dim)
	}
	return fmt.Sprintf("invalid dimension %d for tensor %q: must be a positive integer", e.dim, e.tensor)
}

// ErrInvalidDimension constructs an invalid-dimension error for tensor name
// (empty name means the batch size itself).
func ErrInvalidDimension(tensor string, dim int) error {
	return invalidDimensionError{tensor: tensor, dim: dim}
}

// IsInvalidDimension reports whether err came from shape resolution rejecting
// a non-positive or dynamic dimension. Works through wrapped errors since the
// coordinator adds context before the HTTP layer maps it to a status code.
func IsInvalidDimension(err error) bool {
	var e invalidDimensionError
	return errors.As(err, &e)
}

// Resolve builds a Spec with every dimension a concrete positive integer.
// batch becomes the leading dimension of every tensor. Requests keep their
// order. Fails with an invalid-dimension error on any dim <= 0 (including an
// explicit -1, which callers sometimes pass through from presets they forgot
// to substitute).
func Resolve(batch int, reqs []Request) (Spec, error) {
	if batch <= 0 {
		return Spec{}, ErrInvalidDimension("", batch)
	}
	if len(reqs) == 0 {
		return Spec{}, fmt.Errorf("no tensors requested")
	}
	seen := make(map[string]bool, len(reqs))
	tensors := make([]Tensor, 0, len(reqs))
	for _, r := range reqs {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return Spec{}, fmt.Errorf("tensor with empty name")
		}
		if seen[name] {
			return Spec{}, fmt.Errorf("duplicate tensor name: %s", name)
		}
		seen[name] = true
		dims := make([]int, 0, len(r.Dims)+1)
		dims = append(dims, batch)
		for _, d := range r.Dims {
			if d <= 0 {
				return Spec{}, ErrInvalidDimension(name, d)
			}
			dims = append(dims, d)
		}
		tensors = append(tensors, Tensor{Name: name, Dims: dims, DType: r.DType})
	}
	return Spec{Batch: batch, Tensors: tensors}, nil
}

// Clause renders the tensor in the converter's command-line form,
// e.g. input_ids[1,100] with the batch dimension first.
func (t Tensor) Clause() string {
	var b strings.Builder
	b.WriteString(t.Name)
	b.WriteByte('[')
	for i, d := range t.Dims {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(d))
	}
	b.WriteByte(']')
	return b.String()
}

// Clauses renders one clause per tensor, in spec order.
func (s Spec) Clauses() []string {
	out := make([]string, 0, len(s.Tensors))
	for _, t := range s.Tensors {
		out = append(out, t.Clause())
	}
	return out
}

// Lookup returns the tensor with the given name, if present.
func (s Spec) Lookup(name string) (Tensor, bool) {
	for _, t := range s.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return Tensor{}, false
}
