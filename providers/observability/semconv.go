package observability

// Attribute keys, span, event and metric names shared by the SDK packages.

// --- Service attributes ---

const (
	// AttrQianfanResource is the resource kind (chat, completions, embeddings, ...)
	AttrQianfanResource = "qianfan.resource"

	// AttrQianfanModel is the preset model name (e.g. "ERNIE-Bot-turbo")
	AttrQianfanModel = "qianfan.model"

	// AttrQianfanEndpoint is the model service endpoint path
	AttrQianfanEndpoint = "qianfan.endpoint"

	// AttrQianfanRequestID is the X-Request-Id sent with the request
	AttrQianfanRequestID = "qianfan.request.id"

	// AttrQianfanResponseID is the id returned in the response body
	AttrQianfanResponseID = "qianfan.response.id"

	// AttrQianfanErrorCode is the error_code returned by the service
	AttrQianfanErrorCode = "qianfan.error_code"

	// AttrQianfanStreaming marks streamed requests
	AttrQianfanStreaming = "qianfan.streaming"

	// AttrQianfanTruncated marks a reply cut at the output limit
	AttrQianfanTruncated = "qianfan.is_truncated"

	// AttrQianfanRound is the round number of an auto-concatenated reply
	AttrQianfanRound = "qianfan.round"

	// AttrQianfanBatchSize is the number of inputs in one embedding batch
	AttrQianfanBatchSize = "qianfan.batch_size"

	// AttrHistoryRole and AttrHistoryLength describe a message added to a
	// conversation history; AttrHistorySize is the message count after it.
	AttrHistoryRole   = "qianfan.history.role"
	AttrHistoryLength = "qianfan.history.length"
	AttrHistorySize   = "qianfan.history.size"
)

// --- Token usage ---

const (
	AttrTokensPrompt     = "qianfan.tokens.prompt"     // #nosec G101 -- model tokens, not credentials
	AttrTokensCompletion = "qianfan.tokens.completion" // #nosec G101 -- model tokens, not credentials
	AttrTokensTotal      = "qianfan.tokens.total"      // #nosec G101 -- model tokens, not credentials
)

// --- Latency ---

const (
	AttrLatencyRequest    = "qianfan.latency.request"
	AttrLatencyFirstToken = "qianfan.latency.first_token" // #nosec G101 -- model tokens, not credentials
	AttrLatencyTotal      = "qianfan.latency.total"
)

// --- Retry ---

const (
	AttrRetryAttempt = "retry.attempt"
	AttrRetryBackoff = "retry.backoff"
)

// --- HTTP ---

const (
	AttrHTTPMethod           = "http.method"
	AttrHTTPStatusCode       = "http.status_code"
	AttrHTTPURL              = "http.url"
	AttrHTTPRequestBodySize  = "http.request.body.size"
	AttrHTTPResponseBodySize = "http.response.body.size"
)

// --- Auth ---

const (
	// AttrAuthMethod is "oauth", "iam" or "static"
	AttrAuthMethod = "auth.method"
)

// --- General ---

const (
	AttrError             = "error"
	AttrDuration          = "duration"
	AttrStatus            = "status"
	AttrStatusDescription = "status_description"
)

// --- Span names ---

const (
	SpanQianfanRequest = "qianfan.request"
	SpanQianfanStream  = "qianfan.stream"
	SpanTokenRefresh   = "qianfan.auth.refresh"
)

// --- Event names ---

const (
	EventRequestPrepared  = "http.request.prepared"
	EventRequestError     = "http.request.error"
	EventResponseReceived = "http.response.received"
	EventStreamStarted    = "http.stream.started"
	EventStreamChunk      = "qianfan.stream.chunk"
	EventTokenExpired     = "qianfan.auth.token_expired" // #nosec G101 -- event name, not a credential
	EventRateLimitReset   = "qianfan.ratelimit.reset"
	EventRetry            = "qianfan.retry"
	EventHistoryAppend    = "qianfan.history.append"
	EventHistoryClear     = "qianfan.history.clear"
)

// --- Metric names ---

const (
	MetricRequestCount     = "qianfan.request.count"
	MetricRequestErrors    = "qianfan.request.errors"
	MetricRequestDuration  = "qianfan.request.duration"
	MetricTokensTotal      = "qianfan.tokens.total"      // #nosec G101 -- model tokens, not credentials
	MetricTokensPrompt     = "qianfan.tokens.prompt"     // #nosec G101 -- model tokens, not credentials
	MetricTokensCompletion = "qianfan.tokens.completion" // #nosec G101 -- model tokens, not credentials
	MetricRetryCount       = "qianfan.retry.count"
)
