package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/leofalp/qianfan/resources"
)

func embeddingCmd() *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "embedding <text>...",
		Short: "Embed texts and print one JSON vector per line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := resources.NewEmbedding(t.options()...).Do(cmd.Context(), &resources.EmbeddingRequest{Input: args})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, v := range resp.Vectors() {
				if err := enc.Encode(v); err != nil {
					return err
				}
			}
			return nil
		},
	}
	t.register(cmd, resources.DefaultEmbeddingModel)
	return cmd
}
