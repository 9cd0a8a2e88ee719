package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	port       int
	simulate   bool
	devMode    bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "wa-rotator",
		Short:         "Send rotating WhatsApp messages to a list of recipients",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f)
		},
	}

	cmd.PersistentFlags().StringVar(&f.configPath, "config", "config.yaml", "Path to config file")
	cmd.PersistentFlags().IntVar(&f.port, "port", 0, "Override server port")
	cmd.Flags().BoolVar(&f.simulate, "simulate", false, "Use the simulated messaging client")
	cmd.Flags().BoolVar(&f.devMode, "dev", false, "Development mode (serve frontend from filesystem)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f)
		},
	}
	serve.Flags().AddFlagSet(cmd.Flags())

	cmd.AddCommand(serve, newStatusCmd(f))
	return cmd
}
