// Package protocol defines the documents exchanged with the webext-adder helper.
//
// Document is the untyped form that goes on the wire. Request and Response
// are typed views used by the checks; anything the typed view does not know
// about survives in Request.Extra.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Document is an opaque JSON object. The framer enforces no schema on it.
type Document map[string]any

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ID is a platform identifier, sent as either a JSON string or integer.
// The kind is kept so store lookups bind the same SQLite type the helper wrote.
type ID struct {
	Str   string
	Int   int64
	IsInt bool
}

// StringID returns a string identifier.
func StringID(s string) ID { return ID{Str: s} }

// IntID returns an integer identifier.
func IntID(n int64) ID { return ID{Int: n, IsInt: true} }

// Value returns the identifier as a value suitable for a SQL argument.
func (id ID) Value() any {
	if id.IsInt {
		return id.Int
	}
	return id.Str
}

func (id ID) String() string {
	if id.IsInt {
		return strconv.FormatInt(id.Int, 10)
	}
	return id.Str
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsInt {
		return []byte(strconv.FormatInt(id.Int, 10)), nil
	}
	return json.Marshal(id.Str)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		*id = ID{}
		return json.Unmarshal(b, &id.Str)
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or an integer: %w", err)
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("id must be a string or an integer: %w", err)
	}
	*id = IntID(v)
	return nil
}

// Artwork is one entry of a request's "artworks" list.
type Artwork struct {
	Source    string  `json:"source"`
	Title     *string `json:"title,omitempty"`
	Desc      *string `json:"desc,omitempty"`
	Rating    *int64  `json:"rating,omitempty"`
	License   *string `json:"license,omitempty"`
	Mimetype  *string `json:"mimetype,omitempty"`
	Pageno    *int64  `json:"pageno,omitempty"`
	Height    *int64  `json:"height,omitempty"`
	Width     *int64  `json:"width,omitempty"`
	Postdate  *int64  `json:"postdate,omitempty"`
	Thumbnail any     `json:"thumbnail,omitempty"`
	// Data is a URL, a data URI or a download-spec object.
	Data any `json:"data,omitempty"`
	// DataSHA256 is the expected checksum of the downloaded content.
	// The helper ignores it.
	DataSHA256 *string `json:"data.sha256,omitempty"`
}

// Account is one entry of a request's "accounts" list.
type Account struct {
	ID         ID      `json:"id"`
	Name       *string `json:"name,omitempty"`
	Title      *string `json:"title,omitempty"`
	Desc       *string `json:"desc,omitempty"`
	URL        *string `json:"url,omitempty"`
	MoneyURL   *string `json:"moneyurl,omitempty"`
	Icon       any     `json:"icon,omitempty"`
	CreateDate *int64  `json:"createdate,omitempty"`
}

// Tag is one entry of a request's "tags" list.
type Tag struct {
	ID         ID      `json:"id"`
	Title      *string `json:"title,omitempty"`
	Kind       *string `json:"kind,omitempty"`
	CreateDate *int64  `json:"createdate,omitempty"`
}

// ArtAccLink relates an artwork (by source) to an account (by platform id).
type ArtAccLink struct {
	Artwork string `json:"artwork"`
	Account ID     `json:"account"`
	Link    string `json:"link"`
}

// ArtTagLink relates an artwork (by source) to a tag (by platform id).
type ArtTagLink struct {
	Artwork string `json:"artwork"`
	Tag     ID     `json:"tag"`
}
