package jsonapi

import (
	"encoding/json"
)

// MediaType is the JSON:API content type.
const MediaType = "application/vnd.api+json"

// Resource is a JSON:API resource object as it appears on the wire.
//
// Values are kept as raw JSON so that numbers, nulls and nested objects
// pass through the adapter untouched. A nil map means the member was absent.
type Resource struct {
	ID            string                     `json:"id"`
	Type          string                     `json:"type"`
	Attributes    map[string]json.RawMessage `json:"attributes,omitempty"`
	Relationships map[string]json.RawMessage `json:"relationships,omitempty"`
	Links         map[string]json.RawMessage `json:"links,omitempty"`
}

// Document is a single-resource response envelope.
type Document struct {
	Data  Resource                   `json:"data"`
	Meta  map[string]json.RawMessage `json:"meta,omitempty"`
	Links map[string]json.RawMessage `json:"links,omitempty"`
}

// ListDocument is a collection response envelope. Links carries the
// pagination links (self, first, last, prev, next).
type ListDocument struct {
	Data  []Resource                 `json:"data"`
	Meta  map[string]json.RawMessage `json:"meta,omitempty"`
	Links map[string]json.RawMessage `json:"links,omitempty"`
}

// ErrorObject is one entry of a JSON:API "errors" array.
type ErrorObject struct {
	Status string          `json:"status,omitempty"`
	Code   string          `json:"code,omitempty"`
	Title  string          `json:"title,omitempty"`
	Detail string          `json:"detail,omitempty"`
	Source json.RawMessage `json:"source,omitempty"`
}

// ErrorDocument is the body of a failed JSON:API request.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}
