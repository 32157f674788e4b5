package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexiqai/transcribe-client/internal/config"
	"github.com/lexiqai/transcribe-client/internal/observability"
)

type rootOptions struct {
	output  string
	verbose bool
	app     *app
}

// NewRootCmd builds the command tree. Each call returns an independent tree
// so tests can run commands in isolation.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Record or upload audio and manage transcription jobs",
		Long: `A client for the transcription service.
- Log in once; the credential is kept in the user config directory
- Upload an audio file or record one from the microphone
- List, inspect, watch and delete transcription jobs`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case outputTable, outputJSON, outputYAML:
			default:
				return fmt.Errorf("unknown output format %q (want table, json or yaml)", opts.output)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if opts.verbose {
				level = "debug"
			}
			observability.InitLogger(level, cfg.LogPretty)
			logger := observability.WithContext(map[string]interface{}{
				"command": cmd.CommandPath(),
				"api_url": cfg.APIBaseURL,
				"output":  opts.output,
			})
			logger.Debug().Msg("Running command")

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			opts.app = a
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "output format: table, json or yaml")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "V", false, "verbose logging")

	rootCmd.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newRegisterCmd(opts),
		newWhoamiCmd(opts),
		newJobsCmd(opts),
		newUploadCmd(opts),
		newRecordCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", userMessage(err))
		os.Exit(1)
	}
}
