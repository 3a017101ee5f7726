package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/DrSkyle/depotmap/pkg/attribution"
	"github.com/DrSkyle/depotmap/pkg/config"
	"github.com/DrSkyle/depotmap/pkg/engine"
	"github.com/DrSkyle/depotmap/pkg/version"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Exit code used when a run is interrupted.
const exitCancelled = 130

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "depotmap",
	Short: "Attribute Steam depots to their applications",
	Long: `DepotMap - depot to application attribution

Resolve. Cluster. Generate.`,
	Version:       version.Current,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run:           nil,
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, attribution.ErrCancelled) {
			os.Exit(exitCancelled)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default $HOME/.depotmap.yaml)")
	pf.String("depot-keys", config.DefaultDepotKeys, "Depot key table: path, file://, s3:// or minio:// URL")
	pf.String("catalog", config.DefaultCatalog, "Application catalog: path, file://, s3:// or minio:// URL")
	pf.StringP("output", "o", config.DefaultOutput, "Artifact destination: directory, s3:// or minio:// URL")
	pf.String("log-format", config.DefaultLogFormat, "Log format: json or text")
	pf.String("otel-endpoint", "", "OTLP/HTTP endpoint for traces")
	pf.Bool("skip-telemetry", false, "Do not install a tracer provider")
	pf.BoolP("verbose", "v", false, "Enable debug logging")

	bindFlags(pf, map[string]string{
		"depot_keys":     "depot-keys",
		"catalog":        "catalog",
		"output":         "output",
		"log_format":     "log-format",
		"otel_endpoint":  "otel-endpoint",
		"skip_telemetry": "skip-telemetry",
		"verbose":        "verbose",
	})

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd)
	})

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(searchCmd)
}

func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

func initConfig() {
	// .env is optional.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.SetConfigFile(filepath.Join(home, ".depotmap.yaml"))
			viper.SetConfigType("yaml")
		}
	}
	viper.SetEnvPrefix("DEPOTMAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: could not read config %s: %v\n", cfgFile, err)
	}
}

// loadConfig resolves flags, env and config file into a validated Config.
func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

// newEngine builds an engine that logs to stderr and reports progress at debug level.
func newEngine(ctx context.Context, cfg config.Config) (*engine.Engine, error) {
	logger := engine.NewLogger(os.Stderr, cfg.LogFormat, cfg.Verbose)
	return engine.New(ctx,
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
		engine.WithProgress(func(ev engine.Event) {
			logger.Debug("Progress", "stage", ev.Stage, "processed", ev.Processed, "total", ev.Total)
		}),
	)
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func renderHelp(cmd *cobra.Command) {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00FF99")).
		MarginBottom(1)

	flagStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("DEPOTMAP %s", version.Current)))
	fmt.Fprintln(out, "Depot to application attribution for Steam datasets.")

	fmt.Fprintln(out, titleStyle.Render("USAGE"))
	fmt.Fprintf(out, "  %s\n\n", cmd.UseLine())

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintln(out, titleStyle.Render("COMMANDS"))
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Fprintf(out, "  %-12s %s\n", c.Name(), c.Short)
			}
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, titleStyle.Render("EXAMPLES"))
		fmt.Fprintln(out, "  depotmap generate                                   # local files, ./lua_output")
		fmt.Fprintln(out, "  depotmap generate -o s3://bucket/lua --skip-unknown # upload to S3")
		fmt.Fprintln(out, "  depotmap search \"counter strike\" --generate")
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, titleStyle.Render("FLAGS"))
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		line := fmt.Sprintf("  --%-15s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
			line += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Fprintln(out, flagStyle.Render(line))
	})
	fmt.Fprintln(out)
}
