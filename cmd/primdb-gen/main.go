package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fwessels/primdb"
	"github.com/fwessels/primdb/internal/emit"
	"github.com/fwessels/primdb/internal/envconfig"
	"github.com/fwessels/primdb/internal/logutil"
)

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func newRootCmd() *cobra.Command {
	limits := envconfig.Limits()

	cmd := &cobra.Command{
		Use:           "primdb-gen",
		Short:         "Generate the OpenCL kernel primitive database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: generateHandler,
	}

	cmd.Flags().String("kernels", "", "Directory holding the *.cl kernels")
	cmd.Flags().String("out_path", "", "Output directory")
	cmd.Flags().String("out_file_name_prim_db", "", "File name of the primitive database")
	cmd.Flags().String("out_file_name_batch_headers", "", "File name of the batch headers")
	cmd.Flags().Bool("stats", false, "Print a per kernel summary")
	cmd.Flags().Int("max-lines", limits.MaxLines, "Maximum lines per string literal")
	cmd.Flags().Int("max-chars", limits.MaxCharacters, "Maximum characters per string literal")
	for _, name := range []string{"kernels", "out_path", "out_file_name_prim_db", "out_file_name_batch_headers"} {
		_ = cmd.MarkFlagRequired(name)
	}

	envVars := envconfig.AsMap()
	appendEnvDocs(cmd, []envconfig.EnvVar{
		envVars["PRIMDB_DEBUG"],
		envVars["PRIMDB_MAX_LINES"],
		envVars["PRIMDB_MAX_CHARS"],
	})
	return cmd
}

func generateHandler(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	var opts primdb.Options
	var limits emit.Limits
	var err error
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"kernels", &opts.KernelsDir},
		{"out_path", &opts.OutDir},
		{"out_file_name_prim_db", &opts.PrimDBName},
		{"out_file_name_batch_headers", &opts.BatchHeadersName},
	} {
		if *f.dst, err = flags.GetString(f.name); err != nil {
			return err
		}
	}
	if limits.MaxLines, err = flags.GetInt("max-lines"); err != nil {
		return err
	}
	if limits.MaxCharacters, err = flags.GetInt("max-chars"); err != nil {
		return err
	}
	opts.Limits = &limits

	g, err := primdb.New(opts)
	if err != nil {
		return err
	}
	out, err := g.Run(cmd.Context())
	if err != nil {
		return err
	}

	if stats, _ := flags.GetBool("stats"); stats {
		printStats(cmd.OutOrStdout(), out)
	}
	return nil
}

func printStats(w io.Writer, out *primdb.Output) {
	var data [][]string
	for _, k := range out.Kernels {
		data = append(data, []string{k.Name, strconv.Itoa(k.Segments), strconv.Itoa(len(k.Text))})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "SEGMENTS", "BYTES"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\n%d kernels, %d batch headers, %d + %d bytes written\n",
		len(out.Kernels), len(out.Headers), len(out.PrimitiveDB), len(out.BatchHeaders))
}

// legacyArgs rewrites the single dash long options of the original
// generator (-kernels DIR) to the double dash form.
func legacyArgs(cmd *cobra.Command, args []string) []string {
	out := make([]string, 0, len(args))
	for i, a := range args {
		if a == "--" {
			return append(out, args[i:]...)
		}
		if len(a) > 2 && a[0] == '-' && a[1] != '-' {
			name, _, _ := strings.Cut(a[1:], "=")
			if len(name) > 1 && cmd.Flags().Lookup(name) != nil {
				a = "-" + a
			}
		}
		out = append(out, a)
	}
	return out
}

func main() {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Debug("environment", "settings", envconfig.Values())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(legacyArgs(cmd, os.Args[1:]))
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
