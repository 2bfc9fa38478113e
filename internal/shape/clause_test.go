package shape

import (
	"reflect"
	"testing"
)

func TestParseClause(t *testing.T) {
	tn, err := ParseClause("input_ids[1,100]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tn.Name != "input_ids" || !reflect.DeepEqual(tn.Dims, []int{1, 100}) {
		t.Fatalf("unexpected tensor: %+v", tn)
	}
}

func TestParseClauseWildcard(t *testing.T) {
	// Serving-side shapes with a batch wildcard must parse; legality is
	// decided later by resolution/validation.
	tn, err := ParseClause("input_ids[-1,100]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(tn.Dims, []int{-1, 100}) {
		t.Fatalf("dims = %v, want [-1 100]", tn.Dims)
	}
}

func TestParseClauseErrors(t *testing.T) {
	for _, s := range []string{"", "noshape", "x[]", "x[1,]", "[1]", "x[1", "x 1,2]"} {
		if _, err := ParseClause(s); err == nil {
			t.Fatalf("expected parse error for %q", s)
		}
	}
}

func TestParseClauses(t *testing.T) {
	tensors, err := ParseClauses("input_ids[1,100], attention_mask[1,100] token_type_ids[1,100]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tensors) != 3 {
		t.Fatalf("tensors = %d, want 3", len(tensors))
	}
	if tensors[2].Name != "token_type_ids" {
		t.Fatalf("unexpected order: %+v", tensors)
	}
}

func TestSpecFromTensors(t *testing.T) {
	tensors, err := ParseClauses("input_ids[1,100], attention_mask[1,100]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	spec, err := SpecFromTensors(tensors)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if spec.Batch != 1 {
		t.Fatalf("batch = %d, want 1", spec.Batch)
	}
}

func TestSpecFromTensorsRejectsDynamic(t *testing.T) {
	tensors, _ := ParseClauses("input_ids[-1,100]")
	_, err := SpecFromTensors(tensors)
	if err == nil || !IsInvalidDimension(err) {
		t.Fatalf("expected invalid-dimension error, got %v", err)
	}
}

func TestSpecFromTensorsRejectsMixedBatch(t *testing.T) {
	tensors, _ := ParseClauses("a[1,100] b[2,100]")
	if _, err := SpecFromTensors(tensors); err == nil {
		t.Fatal("expected inconsistent-batch error")
	}
}

func TestClauseRoundTrip(t *testing.T) {
	spec, _ := Resolve(8, []Request{{Name: "pixel_values", Dims: []int{3, 224, 224}}})
	for _, c := range spec.Clauses() {
		tn, err := ParseClause(c)
		if err != nil {
			t.Fatalf("round trip %q: %v", c, err)
		}
		orig, _ := spec.Lookup(tn.Name)
		if !reflect.DeepEqual(tn.Dims, orig.Dims) {
			t.Fatalf("round trip dims %v != %v", tn.Dims, orig.Dims)
		}
	}
}

func TestPreset(t *testing.T) {
	sig, err := Preset("bert-base-uncased", 100)
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	if len(sig.Inputs) != 3 {
		t.Fatalf("inputs = %d, want 3", len(sig.Inputs))
	}
	if !reflect.DeepEqual(sig.Inputs[0].Dims, []int{100}) {
		t.Fatalf("seq len not substituted: %+v", sig.Inputs[0])
	}
	if !reflect.DeepEqual(sig.Outputs[0].Dims, []int{100, 30522}) {
		t.Fatalf("output dims = %v", sig.Outputs[0].Dims)
	}
}

func TestPresetUnknown(t *testing.T) {
	if _, err := Preset("not-a-model", 10); err == nil {
		t.Fatal("expected unknown-preset error")
	}
}

func TestPresetResolveRejectsUnsubstitutedSeqLen(t *testing.T) {
	// A caller passing seqLen=-1 leaves the slot dynamic; Resolve must refuse.
	sig, err := Preset("bert-base-uncased", -1)
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	if _, err := Resolve(1, sig.Inputs); !IsInvalidDimension(err) {
		t.Fatalf("expected invalid-dimension error, got %v", err)
	}
}
