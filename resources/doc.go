// Package resources implements the Qianfan capability clients: chat,
// completions, embeddings, plugins, text-to-image, image-to-text and
// reranking.
//
// Every client is usable as its zero value. On first use it loads the
// configuration with [config.Load] and builds a [requestor.Requestor] with
// retry and timeout middleware and the credential scheme the configuration
// selects. Use the New* constructors and [Option] values to pin a model,
// an endpoint, a configuration or a ready-made requestor.
//
//	chat := resources.NewChatCompletion(resources.WithModel("ERNIE-Bot-4"))
//	resp, err := chat.Do(ctx, &resources.ChatRequest{
//	    Messages: []resources.Message{{Role: resources.RoleUser, Content: "你好"}},
//	})
package resources
