// Package odata decodes the two response envelopes the SAP backends emit:
// OData v2 nests collections under {"d":{"results":[...]}} while v4 uses a
// flat {"value":[...]}. Bare arrays and objects pass through unchanged.
package odata

import (
	"encoding/json"
	"fmt"
)

// DecodeCollection unmarshals a collection response into out (a pointer to a
// slice), regardless of which envelope the backend used.
func DecodeCollection(body []byte, out any) error {
	var nested struct {
		D struct {
			Results json.RawMessage `json:"results"`
		} `json:"d"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.D.Results != nil {
		return json.Unmarshal(nested.D.Results, out)
	}

	var flat struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Value != nil {
		return json.Unmarshal(flat.Value, out)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unrecognized collection envelope: %w", err)
	}
	return nil
}

// DecodeEntity unmarshals a single-entity response into out, unwrapping the
// v2 {"d":{...}} envelope when present.
func DecodeEntity(body []byte, out any) error {
	var nested struct {
		D json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && nested.D != nil {
		return json.Unmarshal(nested.D, out)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unrecognized entity envelope: %w", err)
	}
	return nil
}
