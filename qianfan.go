// Package qianfan is the single import point of the Qianfan SDK. It
// re-exports the capability clients and the environment helper; the
// implementations live in package resources and core/config.
//
//	qianfan.SetEnvVariable("QIANFAN_AK", ak)
//	qianfan.SetEnvVariable("QIANFAN_SK", sk)
//
//	var chat qianfan.ChatCompletion
//	resp, err := chat.Do(ctx, &resources.ChatRequest{
//	    Messages: []resources.Message{{Role: resources.RoleUser, Content: "你好"}},
//	})
package qianfan

import (
	"github.com/leofalp/qianfan/core/config"
	"github.com/leofalp/qianfan/resources"
)

type (
	ChatCompletion = resources.ChatCompletion
	Completions    = resources.Completions
	Embedding      = resources.Embedding
	Plugin         = resources.Plugin
	Text2Image     = resources.Text2Image
	Image2Text     = resources.Image2Text
	Reranker       = resources.Reranker
)

// SetEnvVariable sets a configuration environment variable such as
// QIANFAN_AK. Clients that have not made a call yet pick it up.
//
// It is a variable only so that it can alias config.SetEnvVariable. Do not
// assign to it: code reaching config directly would not see the change.
var SetEnvVariable = config.SetEnvVariable
