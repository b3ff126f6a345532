package resources

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ModelInfo describes a preset model: where it is served and which body keys
// it accepts.
type ModelInfo struct {
	Endpoint     string   `json:"endpoint"`
	RequiredKeys []string `json:"required_keys"`
	OptionalKeys []string `json:"optional_keys,omitempty"`
}

// accepts reports whether key is a required or optional key of the model.
func (m ModelInfo) accepts(key string) bool {
	return slices.Contains(m.RequiredKeys, key) || slices.Contains(m.OptionalKeys, key)
}

/*
	##### PRESET MODELS #####
*/

const (
	DefaultChatModel       = "ERNIE-Bot-turbo"
	DefaultCompletionModel = "SQLCoder-7B"
	DefaultEmbeddingModel  = "Embedding-V1"
	DefaultText2ImageModel = "Stable-Diffusion-XL"
	DefaultRerankerModel   = "bce-reranker-base_v1"

	// EBPluginModel selects the ERNIE-Bot plugin service instead of a
	// deployed Qianfan plugin.
	EBPluginModel = "EBPluginV2"
)

var (
	chatOpenKeys = []string{"stream", "user_id"}
	ernieKeys    = []string{"stream", "temperature", "top_p", "penalty_score", "functions", "system", "user_id"}
)

var chatModels = map[string]ModelInfo{
	"ERNIE-Bot-turbo": {
		Endpoint:     "/chat/eb-instant",
		RequiredKeys: []string{"messages"},
		OptionalKeys: []string{"stream", "temperature", "top_p", "penalty_score", "user_id"},
	},
	"ERNIE-Bot": {
		Endpoint:     "/chat/completions",
		RequiredKeys: []string{"messages"},
		OptionalKeys: append(slices.Clone(ernieKeys), "user_setting"),
	},
	"ERNIE-Bot-4": {
		Endpoint:     "/chat/completions_pro",
		RequiredKeys: []string{"messages"},
		OptionalKeys: ernieKeys,
	},
	"BLOOMZ-7B":                    {Endpoint: "/chat/bloomz_7b1", RequiredKeys: []string{"messages"}, OptionalKeys: chatOpenKeys},
	"Llama-2-7b-chat":              {Endpoint: "/chat/llama_2_7b", RequiredKeys: []string{"messages"}, OptionalKeys: chatOpenKeys},
	"Llama-2-13b-chat":             {Endpoint: "/chat/llama_2_13b", RequiredKeys: []string{"messages"}, OptionalKeys: chatOpenKeys},
	"Llama-2-70b-chat":             {Endpoint: "/chat/llama_2_70b", RequiredKeys: []string{"messages"}, OptionalKeys: chatOpenKeys},
	"Qianfan-BLOOMZ-7B-compressed": {Endpoint: "/chat/qianfan_bloomz_7b_compressed", RequiredKeys: []string{"messages"}, OptionalKeys: chatOpenKeys},
	"Qianfan-Chinese-Llama-2-7B":   {Endpoint: "/chat/qianfan_chinese_llama_2_7b", RequiredKeys: []string{"messages"}, OptionalKeys: chatOpenKeys},
	"ChatGLM2-6B-32K":              {Endpoint: "/chat/chatglm2_6b_32k", RequiredKeys: []string{"messages"}, OptionalKeys: chatOpenKeys},
	"AquilaChat-7B":                {Endpoint: "/chat/aquilachat_7b", RequiredKeys: []string{"messages"}, OptionalKeys: chatOpenKeys},
}

var completionModels = map[string]ModelInfo{
	"SQLCoder-7B": {
		Endpoint:     "/completions/sqlcoder_7b",
		RequiredKeys: []string{"prompt"},
		OptionalKeys: []string{"stream", "temperature", "top_k", "top_p", "penalty_score", "stop", "user_id"},
	},
	"CodeLlama-7b-Instruct": {
		Endpoint:     "/completions/codellama_7b_instruct",
		RequiredKeys: []string{"prompt"},
		OptionalKeys: []string{"stream", "temperature", "top_k", "top_p", "penalty_score", "stop", "user_id"},
	},
}

var embeddingModels = map[string]ModelInfo{
	"Embedding-V1": {Endpoint: "/embeddings/embedding-v1", RequiredKeys: []string{"input"}, OptionalKeys: []string{"user_id"}},
	"bge-large-en": {Endpoint: "/embeddings/bge_large_en", RequiredKeys: []string{"input"}, OptionalKeys: []string{"user_id"}},
	"bge-large-zh": {Endpoint: "/embeddings/bge_large_zh", RequiredKeys: []string{"input"}, OptionalKeys: []string{"user_id"}},
	"tao-8k":       {Endpoint: "/embeddings/tao_8k", RequiredKeys: []string{"input"}, OptionalKeys: []string{"user_id"}},
}

// embeddingBatchSize is the number of inputs one request may carry.
var embeddingBatchSize = map[string]int{
	"tao-8k": 1,
}

const defaultEmbeddingBatchSize = 16

var pluginModels = map[string]ModelInfo{
	EBPluginModel: {
		Endpoint:     "/erniebot/plugin",
		RequiredKeys: []string{"messages", "plugins"},
		OptionalKeys: []string{"stream", "user_id", "extra_data"},
	},
}

var text2ImageModels = map[string]ModelInfo{
	"Stable-Diffusion-XL": {
		Endpoint:     "/text2image/sd_xl",
		RequiredKeys: []string{"prompt"},
		OptionalKeys: []string{"negative_prompt", "size", "n", "steps", "sampler_index", "user_id"},
	},
}

var rerankerModels = map[string]ModelInfo{
	"bce-reranker-base_v1": {
		Endpoint:     "/reranker/bce_reranker_base",
		RequiredKeys: []string{"query", "documents"},
		OptionalKeys: []string{"top_n", "user_id"},
	},
}

// kind is one resource family. It knows its preset models and how a bare
// endpoint name maps to a URL path.
type kind struct {
	name         string
	models       map[string]ModelInfo
	defaultModel string
	// required keys used when an endpoint is given for a model outside the table
	customRequired []string
	convert        func(endpoint string) string
}

func pathConverter(prefix string) func(string) string {
	return func(endpoint string) string {
		return "/" + prefix + "/" + strings.Trim(endpoint, "/")
	}
}

var (
	chatKind = kind{
		name: "chat", models: chatModels, defaultModel: DefaultChatModel,
		customRequired: []string{"messages"}, convert: pathConverter("chat"),
	}
	completionKind = kind{
		name: "completions", models: completionModels, defaultModel: DefaultCompletionModel,
		customRequired: []string{"prompt"}, convert: pathConverter("completions"),
	}
	embeddingKind = kind{
		name: "embedding", models: embeddingModels, defaultModel: DefaultEmbeddingModel,
		customRequired: []string{"input"}, convert: pathConverter("embeddings"),
	}
	pluginKind = kind{
		name: "plugin", models: pluginModels,
		customRequired: []string{"query"},
		convert: func(endpoint string) string {
			return "/plugin/" + strings.Trim(endpoint, "/") + "/"
		},
	}
	text2ImageKind = kind{
		name: "text2image", models: text2ImageModels, defaultModel: DefaultText2ImageModel,
		customRequired: []string{"prompt"}, convert: pathConverter("text2image"),
	}
	image2TextKind = kind{
		name: "image2text", models: map[string]ModelInfo{},
		customRequired: []string{"prompt", "image"}, convert: pathConverter("image2text"),
	}
	rerankerKind = kind{
		name: "reranker", models: rerankerModels, defaultModel: DefaultRerankerModel,
		customRequired: []string{"query", "documents"}, convert: pathConverter("reranker"),
	}
)

// resolve picks the model info for a call. An explicit endpoint always wins;
// the model, if known, then only contributes its key lists. custom reports
// whether the model is outside the preset table.
func (k kind) resolve(model, endpoint string) (name string, info ModelInfo, custom bool, err error) {
	if endpoint != "" {
		info, ok := k.models[model]
		if !ok {
			info = ModelInfo{RequiredKeys: k.customRequired}
		}
		info.Endpoint = k.convert(endpoint)
		return model, info, !ok, nil
	}

	if model == "" {
		model = k.defaultModel
	}
	if model == "" || len(k.models) == 0 {
		return "", ModelInfo{}, false, fmt.Errorf("%s: %w", k.name, ErrEndpointRequired)
	}
	info, ok := k.models[model]
	if !ok {
		return "", ModelInfo{}, false, fmt.Errorf("%w: %s model %q, supported: %s",
			ErrUnknownModel, k.name, model, strings.Join(k.Models(), ", "))
	}
	return model, info, false, nil
}

// Models returns the preset model names, sorted.
func (k kind) Models() []string {
	return slices.Sorted(maps.Keys(k.models))
}

// ChatModels lists the preset chat models.
func ChatModels() map[string]ModelInfo { return maps.Clone(chatModels) }

// CompletionModels lists the preset completion models.
func CompletionModels() map[string]ModelInfo { return maps.Clone(completionModels) }

// EmbeddingModels lists the preset embedding models.
func EmbeddingModels() map[string]ModelInfo { return maps.Clone(embeddingModels) }
