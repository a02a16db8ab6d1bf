package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Top-level request keys known to the typed view.
var requestKeys = map[string]bool{
	"platform":       true,
	"debug":          true,
	"transaction_id": true,
	"artworks":       true,
	"accounts":       true,
	"tags":           true,
	"comics":         true,
	"art_acc_links":  true,
	"art_tag_links":  true,
}

// Request is the typed view of a document submitted to the helper.
type Request struct {
	Platform      string            `json:"platform"`
	Debug         *bool             `json:"debug,omitempty"`
	TransactionID *string           `json:"transaction_id,omitempty"`
	Artworks      []Artwork         `json:"artworks,omitempty"`
	Accounts      []Account         `json:"accounts,omitempty"`
	Tags          []Tag             `json:"tags,omitempty"`
	Comics        []json.RawMessage `json:"comics,omitempty"`
	ArtAccLinks   []ArtAccLink      `json:"art_acc_links,omitempty"`
	ArtTagLinks   []ArtTagLink      `json:"art_tag_links,omitempty"`

	// Extra holds top-level keys the typed view does not model.
	Extra map[string]any `json:"-"`
}

type requestAlias Request

// MarshalJSON merges Extra into the top-level object.
func (r Request) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(requestAlias(r))
	if err != nil || len(r.Extra) == 0 {
		return b, err
	}
	var m map[string]any
	if err := Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if !requestKeys[k] {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON fills the typed fields and keeps unknown keys in Extra.
func (r *Request) UnmarshalJSON(b []byte) error {
	var a requestAlias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var m map[string]any
	if err := Unmarshal(b, &m); err != nil {
		return err
	}
	for k, v := range m {
		if requestKeys[k] {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string]any)
		}
		a.Extra[k] = v
	}
	*r = Request(a)
	return nil
}

// Document converts the request to its wire form.
func (r Request) Document() (Document, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var d Document
	if err := Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseRequest builds the typed view of a document.
// It fails when a known key has the wrong shape, e.g. "artworks" as an object.
func ParseRequest(d Document) (Request, error) {
	var r Request
	b, err := json.Marshal(d)
	if err != nil {
		return r, fmt.Errorf("marshal request document: %w", err)
	}
	if err := Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("parse request: %w", err)
	}
	return r, nil
}

// Response is the helper's answer to one request.
// Reason is set iff Success is false.
type Response struct {
	Success       bool    `json:"success"`
	Reason        *string `json:"reason,omitempty"`
	TransactionID *string `json:"transaction_id,omitempty"`
}

// ErrMissingSuccess is returned when a response has no boolean "success" key.
var ErrMissingSuccess = errors.New(`response has no boolean "success"`)

// ParseResponse builds the typed view of a response document.
func ParseResponse(d Document) (Response, error) {
	var r Response

	v, ok := d["success"]
	if !ok {
		return r, ErrMissingSuccess
	}
	if r.Success, ok = v.(bool); !ok {
		return r, fmt.Errorf("%w: got %T", ErrMissingSuccess, v)
	}

	if v, ok := d["reason"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return r, fmt.Errorf(`response "reason" must be a string, got %T`, v)
		}
		r.Reason = &s
	}
	if v, ok := d["transaction_id"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return r, fmt.Errorf(`response "transaction_id" must be a string, got %T`, v)
		}
		r.TransactionID = &s
	}
	return r, nil
}

// ReasonText returns the failure reason or "" when there is none.
func (r Response) ReasonText() string {
	if r.Reason == nil {
		return ""
	}
	return *r.Reason
}

// Document converts the response to its wire form.
func (r Response) Document() Document {
	d := Document{"success": r.Success}
	if r.Reason != nil {
		d["reason"] = *r.Reason
	}
	if r.TransactionID != nil {
		d["transaction_id"] = *r.TransactionID
	}
	return d
}

// Succeeded returns a success response.
func Succeeded() Response { return Response{Success: true} }

// Failed returns a failure response carrying reason.
func Failed(reason string) Response { return Response{Success: false, Reason: &reason} }
