package resources

import "errors"

var (
	// ErrUnknownModel is returned when a model is not in the preset table and
	// no endpoint was given.
	ErrUnknownModel = errors.New("qianfan: unknown model")

	// ErrMissingRequiredKey is returned when the request body lacks a key the
	// model requires.
	ErrMissingRequiredKey = errors.New("qianfan: missing required key")

	// ErrEndpointRequired is returned by resources that have no preset model,
	// such as Image2Text, when no endpoint was given.
	ErrEndpointRequired = errors.New("qianfan: endpoint required")
)
