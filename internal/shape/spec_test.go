package shape

import (
	"reflect"
	"testing"
)

func TestResolveBatchAndDims(t *testing.T) {
	spec, err := Resolve(4, []Request{
		{Name: "input_ids", Dims: []int{100}, DType: "INT64"},
		{Name: "attention_mask", Dims: []int{100}, DType: "INT64"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if spec.Batch != 4 {
		t.Fatalf("batch = %d, want 4", spec.Batch)
	}
	if len(spec.Tensors) != 2 {
		t.Fatalf("tensors = %d, want 2", len(spec.Tensors))
	}
	if !reflect.DeepEqual(spec.Tensors[0].Dims, []int{4, 100}) {
		t.Fatalf("dims = %v, want [4 100]", spec.Tensors[0].Dims)
	}
	if spec.Tensors[0].Name != "input_ids" || spec.Tensors[1].Name != "attention_mask" {
		t.Fatalf("order not preserved: %+v", spec.Tensors)
	}
}

func TestResolveRejectsNonPositive(t *testing.T) {
	cases := []struct {
		name  string
		batch int
		reqs  []Request
	}{
		{"zero batch", 0, []Request{{Name: "x", Dims: []int{10}}}},
		{"negative batch", -1, []Request{{Name: "x", Dims: []int{10}}}},
		{"zero dim", 1, []Request{{Name: "x", Dims: []int{0}}}},
		{"dynamic dim", 1, []Request{{Name: "x", Dims: []int{-1}}}},
		{"negative dim", 1, []Request{{Name: "x", Dims: []int{100, -7}}}},
	}
	for _, tc := range cases {
		_, err := Resolve(tc.batch, tc.reqs)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !IsInvalidDimension(err) {
			t.Fatalf("%s: expected invalid-dimension error, got %v", tc.name, err)
		}
	}
}

func TestResolveDuplicateAndEmptyNames(t *testing.T) {
	if _, err := Resolve(1, []Request{{Name: "x", Dims: []int{1}}, {Name: "x", Dims: []int{1}}}); err == nil {
		t.Fatal("expected duplicate-name error")
	}
	if _, err := Resolve(1, []Request{{Name: "  ", Dims: []int{1}}}); err == nil {
		t.Fatal("expected empty-name error")
	}
	if _, err := Resolve(1, nil); err == nil {
		t.Fatal("expected no-tensors error")
	}
}

func TestClauseFormat(t *testing.T) {
	spec, err := Resolve(1, []Request{
		{Name: "input_ids", Dims: []int{100}},
		{Name: "pixel_values", Dims: []int{3, 224, 224}},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got := spec.Clauses()
	want := []string{"input_ids[1,100]", "pixel_values[1,3,224,224]"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("clauses = %v, want %v", got, want)
	}
}

func TestLookup(t *testing.T) {
	spec, _ := Resolve(1, []Request{{Name: "a", Dims: []int{2}}})
	if _, ok := spec.Lookup("a"); !ok {
		t.Fatal("expected lookup hit")
	}
	if _, ok := spec.Lookup("b"); ok {
		t.Fatal("expected lookup miss")
	}
}
