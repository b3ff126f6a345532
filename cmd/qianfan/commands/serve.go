package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/leofalp/qianfan/core/requestor"
	"github.com/leofalp/qianfan/providers/observability"
	"github.com/leofalp/qianfan/providers/observability/promobs"
	"github.com/leofalp/qianfan/providers/observability/slogobs"
	"github.com/leofalp/qianfan/resources"
	"github.com/leofalp/qianfan/server/mcp"
	"github.com/leofalp/qianfan/server/openai"
)

func openaiCmd(version string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "openai",
		Short: "Serve Qianfan models behind an OpenAI compatible API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logs := slogobs.New()
			metrics := promobs.New(promobs.WithRegisterer(prometheus.DefaultRegisterer), promobs.WithNamespace("qianfan"))
			obs := observability.Combine(logs, metrics)

			srv := openai.New(
				openai.WithClientOptions(resources.WithRequestorOptions(requestor.WithObservability(obs))),
				openai.WithGatherer(prometheus.DefaultGatherer),
				openai.WithLogger(logs.Logger().With("version", version)),
			)
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8001", "listen address")
	return cmd
}

func mcpCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve chat, embedding and rerank as MCP tools on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcp.New(version).ServeStdio()
		},
	}
}
