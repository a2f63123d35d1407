package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Philanthropists/newsletter-digest/internal/artifacts"
	"github.com/Philanthropists/newsletter-digest/internal/config"
	"github.com/Philanthropists/newsletter-digest/internal/logger"
	"github.com/Philanthropists/newsletter-digest/internal/pipeline"
)

var GitCommit string

type flags struct {
	configPath string
	env        string
	limit      int
	dryRun     bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "newsletter-digest",
		Short:         "Summarize the latest newsletters into one HTML digest",
		Long:          "Fetches the newest inbox messages, summarizes each one with every configured backend and mails the digest (prod) or stores it under the artifacts directory.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, f, cfg)

			if err := logger.Configure(cfg.Log.Level, cfg.Log.Development); err != nil {
				return err
			}
			log := logger.GetLogger()
			defer log.Sync()

			if GitCommit != "" {
				log.Infow("Version", "commit", GitCommit)
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, closeDeps, err := pipeline.Build(ctx, cfg, pipeline.BuildOptions{
				DryRun: f.dryRun,
				Prompt: stdinPrompt(cmd.InOrStdin(), cmd.OutOrStdout()),
			}, log.SugaredLogger)
			if err != nil {
				return err
			}
			defer closeDeps()

			report, err := pipeline.Run(ctx, deps)
			if err != nil {
				return err
			}

			switch {
			case report.Delivered:
				fmt.Fprintf(cmd.OutOrStdout(), "Sent digest of %d newsletters to %s\n", report.Summarized, cfg.Recipient)
			case report.DigestLocation != "":
				fmt.Fprintf(cmd.OutOrStdout(), "Stored digest of %d newsletters at %s\n", report.Summarized, report.DigestLocation)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Nothing to send: %d fetched, %d dropped\n", report.Fetched, report.Dropped)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to a YAML config file (default $"+config.ConfigPathEnv+")")
	cmd.Flags().StringVar(&f.env, "env", "", "environment name; only prod delivers email")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "number of newest messages to fetch")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "never send email, store the digest instead")

	cmd.AddCommand(newShowCmd(&f))

	return cmd
}

func newShowCmd(f *flags) *cobra.Command {
	var stage string

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Print an artifact stored by an earlier run",
		Long:  "Reads the digest (or the input/output JSON) of a past run back from the sqlite or dynamodb artifacts store.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run ID %q: %w", args[0], err)
			}

			st := artifacts.Stage(stage)
			switch st {
			case artifacts.StageInput, artifacts.StageOutput, artifacts.StageEmail:
			default:
				return fmt.Errorf("unknown stage %q", stage)
			}

			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}

			loader, closeLoader, err := pipeline.OpenLoader(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeLoader()

			payload, err := loader.Load(cmd.Context(), runID, st)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(payload)
			return err
		},
	}

	cmd.Flags().StringVar(&stage, "stage", string(artifacts.StageEmail), "artifact to print: input, output or email")

	return cmd
}

// applyFlags lets explicitly set flags win over file and environment values.
func applyFlags(cmd *cobra.Command, f flags, cfg *config.Config) {
	if cmd.Flags().Changed("env") {
		cfg.Env = f.env
	}
	if cmd.Flags().Changed("limit") {
		cfg.Fetch.Limit = f.limit
	}
}

func stdinPrompt(in io.Reader, out io.Writer) func(string) (string, error) {
	return func(authURL string) (string, error) {
		fmt.Fprintf(out, "Go to the following link in your browser then type the "+
			"authorization code: \n%v\n", authURL)

		code, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && code == "" {
			return "", err
		}
		return strings.TrimSpace(code), nil
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
