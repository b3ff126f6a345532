package resources

import (
	"encoding/json"
	"fmt"

	"github.com/leofalp/qianfan/core/requestor"
	"github.com/leofalp/qianfan/internal/jsonschema"
	"github.com/leofalp/qianfan/internal/utils"
)

/*
	##### MESSAGES #####
*/

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// continuePrompt asks the model to go on after a truncated reply.
const continuePrompt = "继续"

// Message is one turn of a conversation. System prompts do not travel as
// messages; set ChatRequest.System instead.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content"`
	Name         string        `json:"name,omitempty"`          // For role=function, the function that produced Content
	FunctionCall *FunctionCall `json:"function_call,omitempty"` // For role=assistant, the call the model requested
}

// FunctionCall is a function invocation requested by the model.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string, possibly malformed
	Thoughts  string `json:"thoughts,omitempty"`
}

// ParseArguments decodes Arguments into T. Slightly malformed JSON, which
// models produce often enough, is repaired first.
func ParseArguments[T any](call FunctionCall) (T, error) {
	args, err := utils.ParseStringAs[T](call.Arguments)
	if err != nil {
		return args, fmt.Errorf("function %s: %w", call.Name, err)
	}
	return args, nil
}

// Function declares a function the model may call.
type Function struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
	Responses   *jsonschema.Schema `json:"responses,omitempty"`
	Examples    [][]Message        `json:"examples,omitempty"`
}

// NewFunction declares a function whose parameters are described by the
// JSON schema of T.
func NewFunction[T any](name, description string) (Function, error) {
	schema, err := jsonschema.For[T]()
	if err != nil {
		return Function{}, fmt.Errorf("function %s: %w", name, err)
	}
	return Function{Name: name, Description: description, Parameters: schema}, nil
}

/*
	##### RESPONSES #####
*/

// Usage counts the tokens of one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Meta is embedded in every typed response. It is filled from the transport
// response, not from the JSON body.
type Meta struct {
	Statistic requestor.Statistic `json:"-"`
	Raw       *requestor.Response `json:"-"` // Headers, status and the undecoded body
}

// ChatResponse is a chat reply, or one chunk of a streamed reply.
type ChatResponse struct {
	ID               string        `json:"id"`
	Object           string        `json:"object"`
	Created          int64         `json:"created"`
	SentenceID       int           `json:"sentence_id,omitempty"` // Stream chunk index
	IsEnd            bool          `json:"is_end,omitempty"`
	IsTruncated      bool          `json:"is_truncated"`
	NeedClearHistory bool          `json:"need_clear_history,omitempty"`
	BanRound         int           `json:"ban_round,omitempty"`
	FinishReason     string        `json:"finish_reason,omitempty"`
	Result           string        `json:"result"`
	FunctionCall     *FunctionCall `json:"function_call,omitempty"`
	Usage            Usage         `json:"usage"`
	Meta
}

// EmbeddingData is the vector of one input.
type EmbeddingData struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

// EmbeddingResponse holds one vector per input, in input order.
type EmbeddingResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Data    []EmbeddingData `json:"data"`
	Usage   Usage           `json:"usage"`
	Meta
}

// Vectors returns the embeddings in input order.
func (r *EmbeddingResponse) Vectors() [][]float64 {
	out := make([][]float64, len(r.Data))
	for i, d := range r.Data {
		out[i] = d.Embedding
	}
	return out
}

// RerankResult scores one document against the query.
type RerankResult struct {
	Document       string  `json:"document"`
	RelevanceScore float64 `json:"relevance_score"`
	Index          int     `json:"index"`
}

// RerankResponse lists documents by decreasing relevance.
type RerankResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Results []RerankResult `json:"results"`
	Usage   Usage          `json:"usage"`
	Meta
}

func (m *Meta) setMeta(resp *requestor.Response) {
	m.Statistic = resp.Statistic
	m.Raw = resp
}

type metaSetter interface {
	setMeta(resp *requestor.Response)
}

// decode fills a typed response from the transport response.
func decode[T any, PT interface {
	*T
	metaSetter
}](resp *requestor.Response) (*T, error) {
	out := new(T)
	if err := json.Unmarshal(resp.Raw, out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	PT(out).setMeta(resp)
	return out, nil
}
