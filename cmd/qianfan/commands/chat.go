package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/leofalp/qianfan/resources"
)

func chatCmd() *cobra.Command {
	var (
		t           target
		system      string
		stream      bool
		autoConcat  bool
		temperature float64
	)
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with a model, interactively when no message is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := &chatSession{
				client:     resources.NewChatCompletion(t.options()...),
				system:     system,
				stream:     stream,
				autoConcat: autoConcat,
				out:        cmd.OutOrStdout(),
			}
			if temperature > 0 {
				s.temperature = lo.ToPtr(temperature)
			}
			if len(args) == 1 {
				return s.send(cmd.Context(), args[0])
			}
			return s.repl(cmd.Context(), cmd.InOrStdin())
		},
	}
	t.register(cmd, resources.DefaultChatModel)
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the reply as it is generated")
	cmd.Flags().BoolVar(&autoConcat, "auto-concat", false, "continue truncated replies automatically")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature in (0, 1]")
	return cmd
}

// chatSession keeps the conversation across turns of the interactive mode.
type chatSession struct {
	client      *resources.ChatCompletion
	system      string
	stream      bool
	autoConcat  bool
	temperature *float64
	out         io.Writer

	history resources.History
}

func (s *chatSession) request(message string) *resources.ChatRequest {
	return &resources.ChatRequest{
		Messages:           append(s.history.Messages(), resources.Message{Role: resources.RoleUser, Content: message}),
		System:             s.system,
		Temperature:        s.temperature,
		AutoConcatTruncate: s.autoConcat,
	}
}

// send asks one question and records the exchange on success.
func (s *chatSession) send(ctx context.Context, message string) error {
	req := s.request(message)

	var reply string
	if s.stream {
		stream, err := s.client.Stream(ctx, req)
		if err != nil {
			return err
		}
		var sb strings.Builder
		for chunk, err := range stream.Iter() {
			if err != nil {
				fmt.Fprintln(s.out)
				return err
			}
			sb.WriteString(chunk.Result)
			fmt.Fprint(s.out, chunk.Result)
		}
		fmt.Fprintln(s.out)
		reply = sb.String()
	} else {
		resp, err := s.client.Do(ctx, req)
		if err != nil {
			return err
		}
		reply = resp.Result
		fmt.Fprintln(s.out, reply)
	}

	s.history.AppendMessage(ctx, req.Messages[len(req.Messages)-1])
	s.history.Append(ctx, resources.RoleAssistant, reply)
	return nil
}

// repl reads one message per line until EOF or "exit". "/reset" clears the
// conversation. A failed turn is reported and the session goes on.
func (s *chatSession) repl(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(s.out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/reset":
			s.history.Clear(ctx)
			continue
		}
		if err := s.send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}
