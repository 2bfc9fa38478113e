package servingcfg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"modelconv/internal/common/fsutil"
)

// The serving engine's native config is protobuf text format. Only the
// subset this workflow emits is modelled; unknown fields parse into the
// generic tree and are ignored on extraction, so hand-edited configs with
// extra settings (version_policy, instance_group, ...) still load.

var pbtxtLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Punct", Pattern: `[:\[\]{},;]`},
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type pbtxtDoc struct {
	Fields []*pbtxtField `parser:"@@*"`
}

type pbtxtField struct {
	Key string    `parser:"@Ident"`
	Val *pbtxtVal `parser:"@@"`
}

type pbtxtVal struct {
	Str     *string     `parser:"  ':' ( @String"`
	Num     *int        `parser:"  | @Int"`
	Enum    *string     `parser:"  | @Ident"`
	NumList []int       `parser:"  | '[' ( @Int ( ',' @Int )* )? ']' )"`
	Msgs    []*pbtxtMsg `parser:"| '[' ( @@ ( ',' @@ )* )? ']'"`
	Msg     *pbtxtMsg   `parser:"| @@"`
}

// Field separators (comma or semicolon) are optional in text format.
type pbtxtMsg struct {
	Fields []*pbtxtField `parser:"'{' ( @@ ( ',' | ';' )? )* '}'"`
}

var pbtxtParser = participle.MustBuild[pbtxtDoc](
	participle.Lexer(pbtxtLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// ParsePBTxt parses a serving config in the engine's protobuf text format.
func ParsePBTxt(b []byte) (ModelConfig, error) {
	doc, err := pbtxtParser.ParseBytes("", b)
	if err != nil {
		return ModelConfig{}, fmt.Errorf("parse serving config: %w", err)
	}
	var cfg ModelConfig
	for _, f := range doc.Fields {
		switch f.Key {
		case "name":
			if f.Val.Str != nil {
				cfg.Name = *f.Val.Str
			}
		case "platform":
			if f.Val.Str != nil {
				cfg.Platform = *f.Val.Str
			}
		case "backend":
			if f.Val.Str != nil {
				cfg.Backend = *f.Val.Str
			}
		case "max_batch_size":
			if f.Val.Num != nil {
				cfg.MaxBatchSize = *f.Val.Num
			}
		case "input":
			tensors, err := tensorsFromVal(f.Val)
			if err != nil {
				return ModelConfig{}, fmt.Errorf("input: %w", err)
			}
			cfg.Inputs = append(cfg.Inputs, tensors...)
		case "output":
			tensors, err := tensorsFromVal(f.Val)
			if err != nil {
				return ModelConfig{}, fmt.Errorf("output: %w", err)
			}
			cfg.Outputs = append(cfg.Outputs, tensors...)
		}
	}
	return cfg, nil
}

func tensorsFromVal(v *pbtxtVal) ([]TensorConfig, error) {
	msgs := v.Msgs
	if v.Msg != nil {
		msgs = append(msgs, v.Msg)
	}
	out := make([]TensorConfig, 0, len(msgs))
	for _, m := range msgs {
		var t TensorConfig
		for _, f := range m.Fields {
			switch f.Key {
			case "name":
				if f.Val.Str != nil {
					t.Name = *f.Val.Str
				}
			case "data_type":
				if f.Val.Enum != nil {
					t.DataType = strings.TrimPrefix(*f.Val.Enum, "TYPE_")
				}
			case "dims":
				if f.Val.NumList != nil {
					t.Dims = f.Val.NumList
				} else if f.Val.Num != nil {
					t.Dims = []int{*f.Val.Num}
				}
			}
		}
		if t.Name == "" {
			return nil, fmt.Errorf("tensor record without a name")
		}
		out = append(out, t)
	}
	return out, nil
}

// MarshalPBTxt renders the config in the engine's text format.
func MarshalPBTxt(cfg ModelConfig) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "name: %q\n", cfg.Name)
	if cfg.Platform != "" {
		fmt.Fprintf(&b, "platform: %q\n", cfg.Platform)
	}
	if cfg.Backend != "" {
		fmt.Fprintf(&b, "backend: %q\n", cfg.Backend)
	}
	fmt.Fprintf(&b, "max_batch_size: %d\n", cfg.MaxBatchSize)
	writeTensorList(&b, "input", cfg.Inputs)
	writeTensorList(&b, "output", cfg.Outputs)
	return []byte(b.String())
}

func writeTensorList(b *strings.Builder, key string, tensors []TensorConfig) {
	if len(tensors) == 0 {
		return
	}
	fmt.Fprintf(b, "%s [\n", key)
	for i, t := range tensors {
		b.WriteString("  {\n")
		fmt.Fprintf(b, "    name: %q\n", t.Name)
		if t.DataType != "" {
			fmt.Fprintf(b, "    data_type: TYPE_%s\n", t.DataType)
		}
		dims := make([]string, len(t.Dims))
		for j, d := range t.Dims {
			dims[j] = strconv.Itoa(d)
		}
		fmt.Fprintf(b, "    dims: [%s]\n", strings.Join(dims, ", "))
		if i < len(tensors)-1 {
			b.WriteString("  },\n")
		} else {
			b.WriteString("  }\n")
		}
	}
	b.WriteString("]\n")
}

// WriteModelRepo lays the config out the way the serving engine expects:
// <repo>/<model>/config.pbtxt with a 1/ version directory. If artifact is
// non-empty the converted model file is copied into the version directory.
// Returns the config path.
func WriteModelRepo(repoDir string, cfg ModelConfig, artifact string) (string, error) {
	if cfg.Name == "" {
		return "", fmt.Errorf("serving config has no model name")
	}
	modelDir := filepath.Join(repoDir, cfg.Name)
	versionDir := filepath.Join(modelDir, "1")
	if err := fsutil.EnsureDir(versionDir); err != nil {
		return "", fmt.Errorf("create model repo layout: %w", err)
	}
	cfgPath := filepath.Join(modelDir, "config.pbtxt")
	if err := os.WriteFile(cfgPath, MarshalPBTxt(cfg), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	if artifact != "" {
		if err := copyFile(artifact, filepath.Join(versionDir, filepath.Base(artifact))); err != nil {
			return "", fmt.Errorf("copy artifact: %w", err)
		}
	}
	return cfgPath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
