package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leofalp/qianfan/resources"
)

func completionCmd() *cobra.Command {
	var (
		t      target
		stream bool
		stop   []string
	)
	cmd := &cobra.Command{
		Use:   "completion <prompt>",
		Short: "Complete a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := resources.NewCompletions(t.options()...)
			req := &resources.CompletionRequest{Prompt: args[0], Stop: stop}
			out := cmd.OutOrStdout()

			if !stream {
				resp, err := client.Do(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, resp.Result)
				return nil
			}

			s, err := client.Stream(cmd.Context(), req)
			if err != nil {
				return err
			}
			defer fmt.Fprintln(out)
			for chunk, err := range s.Iter() {
				if err != nil {
					return err
				}
				fmt.Fprint(out, chunk.Result)
			}
			return nil
		},
	}
	t.register(cmd, resources.DefaultCompletionModel)
	cmd.Flags().BoolVar(&stream, "stream", false, "print the completion as it is generated")
	cmd.Flags().StringSliceVar(&stop, "stop", nil, "stop sequences")
	return cmd
}
