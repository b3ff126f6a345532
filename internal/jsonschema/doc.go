// Package jsonschema derives the JSON Schema of a Go type. ERNIE function
// calling declares parameters and responses this way.
//
// Field names follow the json tags. A field is required unless it is a
// pointer or tagged omitempty. A jsonschema tag adds detail:
//
//	City string `json:"city" jsonschema:"description=City name in Chinese"`
//	Unit string `json:"unit,omitempty" jsonschema:"enum=celsius,enum=fahrenheit"`
//	Days *int   `json:"days" jsonschema:"required"`
//
// Self referencing structs are emitted once under $defs and referenced with
// $ref.
package jsonschema
