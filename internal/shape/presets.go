package shape

import (
	"fmt"
	"sort"
)

// Signature is a known model family's input/output layout. A dim value of
// seqLenSlot marks where the caller-supplied sequence length goes.
type Signature struct {
	Inputs  []Request
	Outputs []Request
}

const seqLenSlot = -1

// Presets for model families this workflow is normally run against. Dims are
// non-batch dims; seqLenSlot entries are substituted at resolve time.
var presets = map[string]Signature{
	"bert-base-uncased": {
		Inputs: []Request{
			{Name: "input_ids", DType: "INT64", Dims: []int{seqLenSlot}},
			{Name: "attention_mask", DType: "INT64", Dims: []int{seqLenSlot}},
			{Name: "token_type_ids", DType: "INT64", Dims: []int{seqLenSlot}},
		},
		Outputs: []Request{
			{Name: "logits", DType: "FP32", Dims: []int{seqLenSlot, 30522}},
		},
	},
	"distilbert-base-uncased": {
		Inputs: []Request{
			{Name: "input_ids", DType: "INT64", Dims: []int{seqLenSlot}},
			{Name: "attention_mask", DType: "INT64", Dims: []int{seqLenSlot}},
		},
		Outputs: []Request{
			{Name: "logits", DType: "FP32", Dims: []int{seqLenSlot, 30522}},
		},
	},
	"microsoft/resnet-50": {
		Inputs: []Request{
			{Name: "pixel_values", DType: "FP32", Dims: []int{3, 224, 224}},
		},
		Outputs: []Request{
			{Name: "logits", DType: "FP32", Dims: []int{1000}},
		},
	},
}

// Preset returns the signature for a known model id with seqLen substituted
// into every sequence-length slot. seqLen is validated by Resolve, not here.
func Preset(modelID string, seqLen int) (Signature, error) {
	sig, ok := presets[modelID]
	if !ok {
		return Signature{}, fmt.Errorf("no shape preset for model %q (known: %v)", modelID, PresetNames())
	}
	return Signature{
		Inputs:  substitute(sig.Inputs, seqLen),
		Outputs: substitute(sig.Outputs, seqLen),
	}, nil
}

// PresetNames lists known preset ids, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for k := range presets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func substitute(reqs []Request, seqLen int) []Request {
	out := make([]Request, len(reqs))
	for i, r := range reqs {
		dims := make([]int, len(r.Dims))
		for j, d := range r.Dims {
			if d == seqLenSlot {
				dims[j] = seqLen
			} else {
				dims[j] = d
			}
		}
		out[i] = Request{Name: r.Name, DType: r.DType, Dims: dims}
	}
	return out
}
