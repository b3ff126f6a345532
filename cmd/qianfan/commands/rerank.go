package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leofalp/qianfan/resources"
)

func rerankCmd() *cobra.Command {
	var (
		t    target
		topN int
	)
	cmd := &cobra.Command{
		Use:   "rerank <query> <document>...",
		Short: "Rank documents by relevance to a query",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := resources.NewReranker(t.options()...).Do(cmd.Context(), &resources.RerankRequest{
				Query:     args[0],
				Documents: args[1:],
				TopN:      topN,
			})
			if err != nil {
				return err
			}
			for _, r := range resp.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "%.4f\t%d\t%s\n", r.RelevanceScore, r.Index, r.Document)
			}
			return nil
		},
	}
	t.register(cmd, resources.DefaultRerankerModel)
	cmd.Flags().IntVar(&topN, "top-n", 0, "return only the best N documents")
	return cmd
}
