package shape

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Clause syntax is the converter's shape argument form:
//
//	Clause     := <name> "[" Int ( "," Int )* "]"
//	ClauseList := Clause ( ","? Clause )*
//
// A -1 dimension parses fine (users paste serving-side shapes too); whether
// it is legal is decided by resolution or validation, not by the parser.

var clauseLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.:/-]*`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Punct", Pattern: `[\[\],]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type clauseAST struct {
	Name string `parser:"@Ident"`
	Dims []int  `parser:"'[' @Int ( ',' @Int )* ']'"`
}

type clauseListAST struct {
	Clauses []*clauseAST `parser:"@@ ( ','? @@ )*"`
}

var (
	clauseParser = participle.MustBuild[clauseAST](
		participle.Lexer(clauseLexer),
		participle.Elide("Whitespace"),
	)
	clauseListParser = participle.MustBuild[clauseListAST](
		participle.Lexer(clauseLexer),
		participle.Elide("Whitespace"),
		participle.UseLookahead(2),
	)
)

// ParseClause parses a single shape clause like "input_ids[1,100]".
// The returned dims include the batch dimension (first entry).
func ParseClause(s string) (Tensor, error) {
	ast, err := clauseParser.ParseString("", s)
	if err != nil {
		return Tensor{}, fmt.Errorf("parse shape clause %q: %w", s, err)
	}
	return Tensor{Name: ast.Name, Dims: ast.Dims}, nil
}

// ParseClauses parses a list of clauses separated by commas or whitespace,
// e.g. "input_ids[1,100], attention_mask[1,100]".
func ParseClauses(s string) ([]Tensor, error) {
	ast, err := clauseListParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("parse shape clauses %q: %w", s, err)
	}
	out := make([]Tensor, 0, len(ast.Clauses))
	for _, c := range ast.Clauses {
		out = append(out, Tensor{Name: c.Name, Dims: c.Dims})
	}
	return out, nil
}

// SpecFromTensors finalizes parsed tensors into a Spec, enforcing the
// no-dynamic-dimension invariant and a consistent leading batch dimension.
func SpecFromTensors(tensors []Tensor) (Spec, error) {
	if len(tensors) == 0 {
		return Spec{}, fmt.Errorf("no tensors given")
	}
	batch := 0
	seen := make(map[string]bool, len(tensors))
	for _, t := range tensors {
		if len(t.Dims) == 0 {
			return Spec{}, fmt.Errorf("tensor %s has no dimensions", t.Name)
		}
		if seen[t.Name] {
			return Spec{}, fmt.Errorf("duplicate tensor name: %s", t.Name)
		}
		seen[t.Name] = true
		for _, d := range t.Dims {
			if d <= 0 {
				return Spec{}, ErrInvalidDimension(t.Name, d)
			}
		}
		if batch == 0 {
			batch = t.Dims[0]
		} else if t.Dims[0] != batch {
			return Spec{}, fmt.Errorf("inconsistent batch dimension: %s has %d, expected %d", t.Name, t.Dims[0], batch)
		}
	}
	return Spec{Batch: batch, Tensors: tensors}, nil
}
