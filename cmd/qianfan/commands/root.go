// Package commands implements the qianfan command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leofalp/qianfan"
	"github.com/leofalp/qianfan/core/config"
	"github.com/leofalp/qianfan/resources"
)

// credentials holds the persistent flags. Non-empty values are exported
// to the environment before any command runs, so every client sees them.
type credentials struct {
	ak, sk               string
	accessKey, secretKey string
	baseURL              string
	logLevel             string
}

func (c *credentials) apply() error {
	for key, value := range map[string]string{
		config.EnvAK:        c.ak,
		config.EnvSK:        c.sk,
		config.EnvAccessKey: c.accessKey,
		config.EnvSecretKey: c.secretKey,
		config.EnvBaseURL:   c.baseURL,
		config.EnvLogLevel:  c.logLevel,
	} {
		if value == "" {
			continue
		}
		if err := qianfan.SetEnvVariable(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the root command with the process arguments.
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	creds := &credentials{}
	root := &cobra.Command{
		Use:           "qianfan",
		Short:         "Call Qianfan models from the command line",
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return creds.apply()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&creds.ak, "ak", "", "API key for OAuth authentication")
	flags.StringVar(&creds.sk, "sk", "", "secret key for OAuth authentication")
	flags.StringVar(&creds.accessKey, "access-key", "", "IAM access key")
	flags.StringVar(&creds.secretKey, "secret-key", "", "IAM secret key")
	flags.StringVar(&creds.baseURL, "base-url", "", "API base URL (default "+config.DefaultBaseURL+")")
	flags.StringVar(&creds.logLevel, "log-level", "", "SDK log level: trace, debug, info, warn or error")

	root.AddCommand(
		chatCmd(),
		completionCmd(),
		embeddingCmd(),
		txt2imgCmd(),
		img2txtCmd(),
		rerankCmd(),
		pluginCmd(),
		openaiCmd(version),
		mcpCmd(version),
	)
	return root
}

// target is the --model/--endpoint pair every resource command takes.
type target struct {
	model    string
	endpoint string
}

func (t *target) register(cmd *cobra.Command, defaultModel string) {
	help := "model name"
	if defaultModel != "" {
		help = fmt.Sprintf("model name (default %s)", defaultModel)
	}
	cmd.Flags().StringVarP(&t.model, "model", "m", "", help)
	cmd.Flags().StringVarP(&t.endpoint, "endpoint", "e", "", "custom endpoint, takes precedence over --model")
}

func (t *target) options() []resources.Option {
	return []resources.Option{resources.WithModel(t.model), resources.WithEndpoint(t.endpoint)}
}
