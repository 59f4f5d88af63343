package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"
)

type commandContext struct {
	configFlag      *string
	apiFlag         *string
	permissionsFlag *string

	configOnce sync.Once
	config     cliConfig
	configErr  error
}

func newCommandContext(configFlag, apiFlag, permissionsFlag *string) *commandContext {
	return &commandContext{
		configFlag:      configFlag,
		apiFlag:         apiFlag,
		permissionsFlag: permissionsFlag,
	}
}

// ensureConfig loads the config file once and applies flag overrides
func (c *commandContext) ensureConfig() (cliConfig, error) {
	c.configOnce.Do(func() {
		cfg, err := loadCLIConfig(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if api := strings.TrimSpace(*c.apiFlag); api != "" {
			cfg.APIURL = strings.TrimRight(api, "/")
		}
		if perms := strings.TrimSpace(*c.permissionsFlag); perms != "" {
			cfg.Permissions = perms
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) client() (*apiClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return newAPIClient(cfg), nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var apiFlag string
	var permissionsFlag string

	ctx := newCommandContext(&configFlag, &apiFlag, &permissionsFlag)

	rootCmd := &cobra.Command{
		Use:           "destuffctl",
		Short:         "Operate container destuffing from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", "", "Destuffing API base URL")
	rootCmd.PersistentFlags().StringVar(&permissionsFlag, "permissions", "", "Comma separated capabilities sent with each request")

	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newUnsealCommand(ctx))
	rootCmd.AddCommand(newResealCommand(ctx))
	rootCmd.AddCommand(newStartCommand(ctx))
	rootCmd.AddCommand(newResultCommand(ctx))
	rootCmd.AddCommand(newCompleteCommand(ctx))

	return rootCmd
}
