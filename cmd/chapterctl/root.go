package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type commandContext struct {
	server  string
	userID  string
	timeout time.Duration
}

func (c *commandContext) client() *apiClient {
	return newAPIClient(strings.TrimRight(c.server, "/"), c.userID, c.timeout)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "chapterctl",
		Short:         "Upload documents and read their chapters",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	defaultServer := os.Getenv("CHAPTERFLOW_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&ctx.server, "server", defaultServer, "API base URL")
	rootCmd.PersistentFlags().StringVar(&ctx.userID, "user", os.Getenv("CHAPTERFLOW_USER"), "Owner id sent as X-User-Id")
	rootCmd.PersistentFlags().DurationVar(&ctx.timeout, "timeout", 60*time.Second, "HTTP request timeout")

	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newChaptersCommand(ctx))
	rootCmd.AddCommand(newReadCommand(ctx))

	return rootCmd
}
