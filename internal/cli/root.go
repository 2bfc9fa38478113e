// Package cli builds the modelconv command tree.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelconv/internal/config"
	"modelconv/internal/pipeline"
	"modelconv/internal/servingcfg"
)

// Execute runs the root command. Errors are printed once, here.
func Execute() int {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

type app struct {
	cfgPath  string
	logLevel string

	cfg config.Config
	log zerolog.Logger
}

// setup loads config and builds the logger. Called from PersistentPreRunE so
// every subcommand sees the same effective config.
func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", cfg.LogLevel, err)
	}
	a.cfg = cfg
	a.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
	return nil
}

func (a *app) coordinator() *pipeline.Coordinator {
	return pipeline.New(a.cfg, a.log)
}

func buildRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "modelconv",
		Short:         "Convert models to serving formats and validate serving configs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Config file (json|yaml|toml); env MODELCONV_* overrides")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	root.AddCommand(
		newResolveCmd(a),
		newConvertCmd(a),
		newValidateCmd(a),
		newGenConfigCmd(a),
		newRunCmd(a),
		newServeCmd(a),
	)

	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	root.AddCommand(completionCmd)

	return root
}

// shapeFlags are shared by every command that needs resolved shapes.
type shapeFlags struct {
	model   string
	batch   int
	seqLen  int
	clauses string
}

func (f *shapeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.model, "model", "", "Preset model id, e.g. bert-base-uncased")
	cmd.Flags().IntVar(&f.batch, "batch", 1, "Batch size (leading dimension)")
	cmd.Flags().IntVar(&f.seqLen, "seq-len", 100, "Sequence length for preset sequence slots")
	cmd.Flags().StringVar(&f.clauses, "shapes", "", `Explicit shape clauses, e.g. "input_ids[1,100], attention_mask[1,100]"`)
}

func (f *shapeFlags) runRequest() pipeline.RunRequest {
	return pipeline.RunRequest{
		Model:   f.model,
		Batch:   f.batch,
		SeqLen:  f.seqLen,
		Clauses: f.clauses,
	}
}

func newResolveCmd(a *app) *cobra.Command {
	var flags shapeFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve concrete tensor shapes from a preset or explicit clauses",
		Example: "  modelconv resolve --model bert-base-uncased --batch 1 --seq-len 100\n" +
			`  modelconv resolve --shapes "input_ids[1,100] attention_mask[1,100]"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out, err := a.coordinator().ResolveShapes(flags.runRequest())
			if err != nil {
				return err
			}
			for _, cl := range in.Clauses() {
				fmt.Fprintln(cmd.OutOrStdout(), "input:", cl)
			}
			for _, t := range out.Tensors {
				fmt.Fprintln(cmd.OutOrStdout(), "output:", t.Clause())
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	var flags shapeFlags
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a serving config against resolved shapes",
		Example: "  modelconv validate --model bert-base-uncased --batch 1 --seq-len 100 \\\n" +
			"      --serving-config model_repository/bert/config.pbtxt",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out, err := a.coordinator().ResolveShapes(flags.runRequest())
			if err != nil {
				return err
			}
			scfg, err := servingcfg.Load(cfgPath)
			if err != nil {
				return err
			}
			rep := a.coordinator().Validate(in, scfg)
			if len(out.Tensors) > 0 {
				rep.Checks = append(rep.Checks, servingcfg.CheckTensors(out.Tensors, scfg.Outputs)...)
				rep.Pass = true
				for _, chk := range rep.Checks {
					if !chk.OK {
						rep.Pass = false
						break
					}
				}
			}
			printReport(cmd, rep)
			if !rep.Pass {
				return fmt.Errorf("%d tensor(s) mismatched", len(rep.Failures()))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&cfgPath, "serving-config", "", "Serving config file (pbtxt|yaml|json)")
	cmd.MarkFlagRequired("serving-config")
	return cmd
}

func newGenConfigCmd(a *app) *cobra.Command {
	var flags shapeFlags
	var platform string
	var wildcard bool
	cmd := &cobra.Command{
		Use:   "gen-config",
		Short: "Generate a serving config (pbtxt) from resolved shapes",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out, err := a.coordinator().ResolveShapes(flags.runRequest())
			if err != nil {
				return err
			}
			name := strings.ReplaceAll(flags.model, "/", "-")
			if name == "" {
				name = "model"
			}
			gen := servingcfg.FromSpec(name, platform, in, out, wildcard)
			_, err = cmd.OutOrStdout().Write(servingcfg.MarshalPBTxt(gen))
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&platform, "platform", "onnxruntime_onnx", "Serving platform string")
	cmd.Flags().BoolVar(&wildcard, "wildcard-batch", true, "Emit -1 at the batch position")
	return cmd
}

func printReport(cmd *cobra.Command, rep servingcfg.Report) {
	w := cmd.OutOrStdout()
	for _, chk := range rep.Checks {
		mark := "ok  "
		if !chk.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "%s %s", mark, chk.Name)
		if chk.Reason != "" {
			fmt.Fprintf(w, ": %s (want %v, got %v)", chk.Reason, chk.Want, chk.Got)
		}
		fmt.Fprintln(w)
	}
	verdict := "PASS"
	if !rep.Pass {
		verdict = "FAIL"
	}
	fmt.Fprintf(w, "%s (%d checks)\n", verdict, len(rep.Checks))
}
