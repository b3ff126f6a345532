package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leofalp/qianfan/resources"
)

func pluginCmd() *cobra.Command {
	var (
		t        target
		plugins  []string
		markdown bool
	)
	cmd := &cobra.Command{
		Use:   "plugin <query>",
		Short: "Query a plugin service; use --endpoint or --model " + resources.EBPluginModel,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &resources.PluginRequest{Plugins: plugins}
			if t.endpoint == "" && t.model == resources.EBPluginModel {
				req.Messages = []resources.Message{{Role: resources.RoleUser, Content: args[0]}}
			} else {
				req.Query = args[0]
			}

			resp, err := resources.NewPlugin(t.options()...).Do(cmd.Context(), req)
			if err != nil {
				return err
			}
			result := resp.Result
			if markdown {
				if result, err = resp.Markdown(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}
	t.register(cmd, "")
	cmd.Flags().StringSliceVar(&plugins, "plugins", nil, "plugins to enable, e.g. uuid-zhishiku")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "convert an HTML reply to Markdown")
	return cmd
}
