package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leofalp/qianfan/resources"
)

func txt2imgCmd() *cobra.Command {
	var (
		t        target
		negative string
		size     string
		n        int
		steps    int
		output   string
	)
	cmd := &cobra.Command{
		Use:   "txt2img <prompt>",
		Short: "Generate images and save them as PNG files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := resources.NewText2Image(t.options()...).Do(cmd.Context(), &resources.Text2ImageRequest{
				Prompt:         args[0],
				NegativePrompt: negative,
				Size:           size,
				N:              n,
				Steps:          steps,
			})
			if err != nil {
				return err
			}
			images, err := resp.Images()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(output, 0o755); err != nil {
				return err
			}
			for i, img := range images {
				name := filepath.Join(output, fmt.Sprintf("%s-%d.png", resp.ID, i))
				if resp.ID == "" {
					name = filepath.Join(output, fmt.Sprintf("image-%d.png", i))
				}
				if err := os.WriteFile(name, img, 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	t.register(cmd, resources.DefaultText2ImageModel)
	cmd.Flags().StringVar(&negative, "negative-prompt", "", "what the image should not contain")
	cmd.Flags().StringVar(&size, "size", "", "image size, e.g. 1024x1024")
	cmd.Flags().IntVarP(&n, "count", "n", 0, "number of images")
	cmd.Flags().IntVar(&steps, "steps", 0, "sampling steps")
	cmd.Flags().StringVarP(&output, "output", "o", ".", "directory to write the images to")
	return cmd
}

func img2txtCmd() *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "img2txt <image-file> <prompt>",
		Short: "Ask a question about an image; requires --endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			resp, err := resources.NewImage2Text(t.options()...).Do(cmd.Context(), &resources.Image2TextRequest{
				Image:  img,
				Prompt: args[1],
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Result)
			return nil
		},
	}
	t.register(cmd, "")
	return cmd
}
