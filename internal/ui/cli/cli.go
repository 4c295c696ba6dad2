package cli

import (
	"fmt"

	"externaltypes/internal/core/ports"
	"externaltypes/internal/engine/cargo"
	"externaltypes/internal/shared/version"
	"externaltypes/internal/ui/report"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// subcommandName is the argument cargo passes when it runs the binary as
// `cargo check-external-types`.
const subcommandName = "check-external-types"

type cliOptions struct {
	allFeatures       bool
	noDefaultFeatures bool
	features          []string
	manifestPath      string
	target            string
	configPath        string
	verbose           bool
	outputFormat      string
	docJSON           string
	watch             bool
	metricsFile       string
	otlpEndpoint      string
	color             string
}

func defaultOptions() cliOptions {
	return cliOptions{outputFormat: string(report.FormatErrors), color: "auto"}
}

func bindFlags(fs *pflag.FlagSet, opts *cliOptions) {
	fs.BoolVar(&opts.allFeatures, "all-features", false, "Enables all crate features")
	fs.BoolVar(&opts.noDefaultFeatures, "no-default-features", false, "Disables default features")
	fs.StringSliceVar(&opts.features, "features", nil, "Comma delimited list of features to enable in the crate")
	fs.StringVar(&opts.manifestPath, "manifest-path", "", "Path to the Cargo manifest")
	fs.StringVar(&opts.target, "target", "", "Target triple")
	fs.StringVar(&opts.configPath, "config", "", "Path to config toml to read")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output for debugging")
	fs.StringVar(&opts.outputFormat, "output-format", opts.outputFormat, "Format to output results in (errors, markdown-table, sarif)")
	fs.StringVar(&opts.docJSON, "doc-json", "", "Audit an already built rustdoc JSON file instead of running rustdoc")
	fs.BoolVar(&opts.watch, "watch", false, "Re-run the audit whenever the crate or its config changes")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "Write audit metrics in Prometheus textfile format to this path")
	fs.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "Export traces to this OTLP/gRPC endpoint")
	fs.StringVar(&opts.color, "color", opts.color, "Colorize output (auto|on|off)")
}

func markExclusive(cmd *cobra.Command) {
	cmd.MarkFlagsMutuallyExclusive("all-features", "no-default-features")
}

// newRootCommand builds the command tree. The audit runs either directly or
// through the check-external-types subcommand so that both
// `cargo check-external-types` and a plain invocation work.
func newRootCommand(opts *cliOptions, run func(cmd *cobra.Command, opts cliOptions) error) *cobra.Command {
	runE := func(cmd *cobra.Command, _ []string) error {
		return run(cmd, *opts)
	}

	root := &cobra.Command{
		Use:           "cargo-check-external-types",
		Short:         "Static analysis tool to detect external types exposed in a library's public API",
		Version:       version.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runE,
	}
	bindFlags(root.Flags(), opts)
	markExclusive(root)

	sub := &cobra.Command{
		Use:           subcommandName,
		Short:         root.Short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runE,
	}
	bindFlags(sub.Flags(), opts)
	markExclusive(sub)
	root.AddCommand(sub)

	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

func (o cliOptions) auditOptions() (ports.AuditOptions, error) {
	format, err := report.ParseFormat(o.outputFormat)
	if err != nil {
		return ports.AuditOptions{}, err
	}
	switch o.color {
	case "auto", "on", "off":
	default:
		return ports.AuditOptions{}, fmt.Errorf("invalid color mode: %s. Expected `auto`, `on` or `off`.", o.color)
	}
	return ports.AuditOptions{
		ManifestPath: o.manifestPath,
		ConfigPath:   o.configPath,
		DocJSON:      o.docJSON,
		Features: cargo.FeatureOptions{
			AllFeatures:       o.allFeatures,
			NoDefaultFeatures: o.noDefaultFeatures,
			Features:          o.features,
		},
		Target:      o.target,
		Format:      format,
		Watch:       o.watch,
		MetricsFile: o.metricsFile,
	}, nil
}
