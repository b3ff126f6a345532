package resources

import (
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/samber/lo"
)

// Plugin calls a Qianfan plugin deployed at an endpoint, or the ERNIE-Bot
// plugin service when the model is EBPluginModel.
type Plugin struct {
	base
}

// NewPlugin returns a Plugin configured by opts.
func NewPlugin(opts ...Option) *Plugin {
	p := &Plugin{}
	p.apply(opts)
	return p
}

// PluginRequest is the input of Plugin. Qianfan plugins take Query;
// EBPluginModel takes Messages.
type PluginRequest struct {
	Model    string `json:"-"`
	Endpoint string `json:"-"`

	Query          string         `json:"query,omitempty"`
	Messages       []Message      `json:"messages,omitempty"`
	Plugins        []string       `json:"plugins,omitempty"`
	Verbose        bool           `json:"verbose,omitempty"`
	History        []Message      `json:"history,omitempty"`
	LLM            map[string]any `json:"llm,omitempty"`
	InputVariables map[string]any `json:"input_variables,omitempty"`
	UserID         string         `json:"user_id,omitempty"`

	Extra map[string]any `json:"-"`
}

// PluginResponse is a plugin reply or one chunk of a streamed reply.
type PluginResponse struct {
	ID           string `json:"id,omitempty"`
	Object       string `json:"object,omitempty"`
	Created      int64  `json:"created,omitempty"`
	LogID        string `json:"log_id,omitempty"`
	SentenceID   int    `json:"sentence_id,omitempty"`
	IsEnd        bool   `json:"is_end,omitempty"`
	Result       string `json:"result"`
	PluginInfo   any    `json:"plugin_info,omitempty"`
	MetaInfo     any    `json:"meta_info,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
	Meta
}

// PluginStream streams plugin replies.
type PluginStream = Stream[PluginResponse]

// Markdown returns Result with HTML fragments converted to Markdown.
// Plugins that render documents or search hits answer in HTML.
func (r *PluginResponse) Markdown() (string, error) {
	if !strings.Contains(r.Result, "<") {
		return r.Result, nil
	}
	md, err := htmltomarkdown.ConvertString(r.Result)
	if err != nil {
		return "", fmt.Errorf("convert plugin result: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// Do calls the plugin.
func (p *Plugin) Do(ctx context.Context, req *PluginRequest, opts ...CallOption) (*PluginResponse, error) {
	cl, err := p.preparePlugin(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	resp, err := p.do(ctx, cl)
	if err != nil {
		return nil, err
	}
	out, err := decode[PluginResponse](resp)
	if err != nil {
		return nil, err
	}
	recordCall(ctx, cl, lo.CoalesceOrEmpty(out.ID, out.LogID), out.Usage, out.Statistic)
	return out, nil
}

// Stream calls the plugin and streams its reply.
func (p *Plugin) Stream(ctx context.Context, req *PluginRequest, opts ...CallOption) (*PluginStream, error) {
	cl, err := p.preparePlugin(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	stream, err := p.stream(ctx, cl)
	if err != nil {
		return nil, err
	}

	return newStream(func(yield func(*PluginResponse, error) bool) {
		var last *PluginResponse
		for chunk, err := range stream.Iter() {
			if err != nil {
				yield(nil, err)
				return
			}
			out, err := decode[PluginResponse](chunk)
			if err != nil {
				yield(nil, err)
				return
			}
			last = out
			if !yield(out, nil) {
				return
			}
		}
		if last != nil {
			recordCall(ctx, cl, lo.CoalesceOrEmpty(last.ID, last.LogID), last.Usage, last.Statistic)
		}
	}, mergePlugin), nil
}

func (p *Plugin) preparePlugin(ctx context.Context, req *PluginRequest, opts []CallOption) (*call, error) {
	body, err := buildBody(req, req.Extra)
	if err != nil {
		return nil, err
	}
	return p.prepare(ctx, pluginKind, req.Model, req.Endpoint, body, opts)
}

func mergePlugin(acc, chunk *PluginResponse) {
	acc.Result += chunk.Result
	acc.SentenceID = chunk.SentenceID
	acc.IsEnd = chunk.IsEnd
	acc.FinishReason = chunk.FinishReason
	acc.Usage = chunk.Usage
	acc.Meta = chunk.Meta
	if chunk.PluginInfo != nil {
		acc.PluginInfo = chunk.PluginInfo
	}
	if chunk.MetaInfo != nil {
		acc.MetaInfo = chunk.MetaInfo
	}
}
