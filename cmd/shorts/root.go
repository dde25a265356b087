package main

import (
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-shorts/internal/config"
)

const envServer = "SHORTS_SERVER"

type commandContext struct {
	configFlag *string
	serverFlag *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newRootCommand() *cobra.Command {
	var configFlag, serverFlag, tokenFlag string

	ctx := &commandContext{
		configFlag: &configFlag,
		serverFlag: &serverFlag,
		tokenFlag:  &tokenFlag,
	}

	rootCmd := &cobra.Command{
		Use:           "shorts",
		Short:         "Turn narrated scenes into short vertical videos",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Base URL of a running server (default from config, or $"+envServer+")")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "API bearer token (default from config or $SHORTS_AUTH_TOKEN)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, _, _, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// client builds an API client from flags, falling back to the config.
func (c *commandContext) client() (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimSpace(*c.serverFlag)
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv(envServer))
	}
	if baseURL == "" {
		baseURL = "http://" + cfg.Addr()
	}

	token := strings.TrimSpace(*c.tokenFlag)
	if token == "" {
		token = cfg.Server.AuthToken
	}

	return newAPIClient(baseURL, token), nil
}
