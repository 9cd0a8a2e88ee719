package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/wa-rotator/backend/internal/console"
)

func newStatusCmd(f *rootFlags) *cobra.Command {
	var (
		addr  string
		token string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running sessions of a server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" || token == "" {
				cfg, err := loadConfig(f)
				if err != nil {
					return err
				}
				if addr == "" {
					addr = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
				}
				if token == "" {
					token = cfg.Server.AuthToken
				}
			}

			c := console.NewClient(addr, token)
			if !watch {
				return printStatus(cmd, c)
			}

			stream, err := console.NewStream(addr, token)
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(console.NewWatch(c, stream), tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Server base URL (default from config)")
	cmd.Flags().StringVar(&token, "token", "", "API token (default from config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the live session stream")
	return cmd
}

func printStatus(cmd *cobra.Command, c *console.Client) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	health, err := c.Health(ctx)
	if err != nil {
		return err
	}
	list, err := c.Sessions(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), console.Render(health, list.Sessions, time.Now()))
	return err
}
