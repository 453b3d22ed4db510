package models

import (
	"encoding/json"
	"net/http"
)

// Outcome is the result of one logical API call after the session client has
// exhausted its resilience policy. It is consumed immediately by the caller
// and never persisted.
type Outcome struct {
	Success bool
	Status  int
	Data    json.RawMessage
	Err     string
	Header  http.Header
}

// Decode unmarshals the outcome payload into v.
func (o Outcome) Decode(v any) error {
	return json.Unmarshal(o.Data, v)
}
