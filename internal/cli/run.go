package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"modelconv/internal/convert"
	"modelconv/internal/pipeline"
)

func newConvertCmd(a *app) *cobra.Command {
	var flags shapeFlags
	var source, format, outDir string
	var timeoutSec int
	var extraArgs []string
	var inspect bool
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Invoke the converter once, without validation",
		Example: "  modelconv convert --model bert-base-uncased --source bert-base-uncased \\\n" +
			"      --format onnx --output-dir converted/bert",
		RunE: func(cmd *cobra.Command, args []string) error {
			co := a.coordinator()
			in, _, err := co.ResolveShapes(flags.runRequest())
			if err != nil {
				return err
			}
			timeout := time.Duration(timeoutSec) * time.Second
			if timeout <= 0 {
				timeout = time.Duration(a.cfg.TimeoutSec) * time.Second
			}
			res, err := co.Invoker().Run(cmd.Context(), convert.Job{
				Source:    source,
				Format:    format,
				Spec:      in,
				OutputDir: outDir,
				ExtraArgs: extraArgs,
				Timeout:   timeout,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "artifact:", res.Artifact)
			if inspect {
				out, err := co.Invoker().Inspect(cmd.Context(), res.Artifact)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&source, "source", "", "Source model id or path passed to the converter")
	cmd.Flags().StringVar(&format, "format", convert.FormatONNX, "Target format: onnx|openvino")
	cmd.Flags().StringVar(&outDir, "output-dir", "", "Directory for the converted artifact")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "Conversion timeout in seconds (0 = config default)")
	cmd.Flags().StringArrayVar(&extraArgs, "tool-arg", nil, "Extra argument passed through to the converter (repeatable)")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "Inspect the artifact after conversion")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("output-dir")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var flags shapeFlags
	var format, servingConfig, outputDir string
	var timeoutSec int
	var wildcard bool
	var extraArgs []string
	cmd := &cobra.Command{
		Use:   "run [model...]",
		Short: "Run the full convert-and-validate workflow",
		Long: "Runs the workflow for each given model id, or for --model when no\n" +
			"arguments are given. Each run resolves shapes, converts, writes or loads\n" +
			"the serving config and validates it.",
		Example: "  modelconv run --batch 1 --seq-len 100 bert-base-uncased distilbert-base-uncased",
		RunE: func(cmd *cobra.Command, args []string) error {
			co := a.coordinator()
			models := args
			if len(models) == 0 {
				if flags.model == "" && flags.clauses == "" {
					return fmt.Errorf("give model ids as arguments or set --model / --shapes")
				}
				models = []string{flags.model}
			}
			if outputDir != "" && len(models) > 1 {
				return fmt.Errorf("--output-dir only applies to single-model runs")
			}

			var bar *progressbar.ProgressBar
			if len(models) > 1 {
				bar = progressbar.Default(int64(len(models)), "converting")
			}
			failures := 0
			for _, m := range models {
				req := pipeline.RunRequest{
					Model:         m,
					Source:        m,
					Format:        format,
					OutputDir:     outputDir,
					Batch:         flags.batch,
					SeqLen:        flags.seqLen,
					Clauses:       flags.clauses,
					ServingConfig: servingConfig,
					WildcardBatch: wildcard,
					ExtraArgs:     extraArgs,
					TimeoutSec:    timeoutSec,
				}
				st, err := co.Run(cmd.Context(), req)
				if bar != nil {
					bar.Add(1)
				}
				if err != nil {
					failures++
					a.log.Error().Str("model", m).Str("state", st.State).Err(err).Msg("workflow failed")
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s", m, st.State)
				if st.Result != nil {
					fmt.Fprintf(cmd.OutOrStdout(), " (%s)", st.Result.Artifact)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				if st.Report != nil {
					printReport(cmd, *st.Report)
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d runs failed", failures, len(models))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", convert.FormatONNX, "Target format: onnx|openvino")
	cmd.Flags().StringVar(&servingConfig, "serving-config", "", "Existing serving config to validate instead of generating one")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Artifact directory; single-model runs only (default converted/<model>-<format>)")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "Conversion timeout in seconds (0 = config default)")
	cmd.Flags().BoolVar(&wildcard, "wildcard-batch", true, "Generated config gets -1 at the batch position")
	cmd.Flags().StringArrayVar(&extraArgs, "tool-arg", nil, "Extra argument passed through to the converter (repeatable)")
	return cmd
}
