package cmd

import (
	"fmt"
	"os"

	"demobook/config"
	"demobook/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	CommitSHA = "none"
)

// cliState is filled by the root command before any subcommand runs.
type cliState struct {
	cfg    config.Config
	logger *zap.Logger
}

func NewRootCmd() *cobra.Command {
	state := &cliState{}

	root := &cobra.Command{
		Use:           "demobook",
		Short:         "Demo session booking service: meeting link, calendar event, record and confirmation email",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.New())
			if err != nil {
				return err
			}
			config.AppConfig = cfg

			logger, err := utils.NewLogger(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			state.cfg = cfg
			state.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if state.logger != nil {
				_ = state.logger.Sync()
			}
		},
	}

	root.AddCommand(newServeCmd(state))
	root.AddCommand(newWorkerCmd(state))
	root.AddCommand(newResumeCmd(state))
	root.AddCommand(newAbandonCmd(state))
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "demobook %s (%s)\n", Version, CommitSHA)
		},
	}
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
