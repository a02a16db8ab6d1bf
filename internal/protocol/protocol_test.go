package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDJSON(t *testing.T) {
	var ids []ID
	require.NoError(t, json.Unmarshal([]byte(`["alice", 42, "7"]`), &ids))

	assert.Equal(t, StringID("alice"), ids[0])
	assert.Equal(t, IntID(42), ids[1])
	assert.Equal(t, StringID("7"), ids[2])
	assert.Equal(t, int64(42), ids[1].Value())
	assert.Equal(t, "7", ids[2].Value())
	assert.Equal(t, "42", ids[1].String())

	b, err := json.Marshal(ids)
	require.NoError(t, err)
	assert.JSONEq(t, `["alice", 42, "7"]`, string(b))

	var bad ID
	assert.Error(t, json.Unmarshal([]byte(`1.5`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{}`), &bad))
}

func TestParseRequest(t *testing.T) {
	doc := Document{
		"platform":       "example.com",
		"transaction_id": "tx-1",
		"artworks": []any{
			map[string]any{
				"source":      "https://example.com/art/1",
				"title":       "First",
				"rating":      float64(0),
				"data":        "data:text/plain;base64,aGk=",
				"data.sha256": "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4",
			},
		},
		"accounts":      []any{map[string]any{"id": float64(12), "name": "alice"}},
		"tags":          []any{map[string]any{"id": "cat", "kind": "species"}},
		"art_acc_links": []any{map[string]any{"artwork": "https://example.com/art/1", "account": float64(12), "link": "account"}},
		"art_tag_links": []any{map[string]any{"artwork": "https://example.com/art/1", "tag": "cat"}},
		"x-custom":      true,
	}

	req, err := ParseRequest(doc)
	require.NoError(t, err)

	assert.Equal(t, "example.com", req.Platform)
	require.NotNil(t, req.TransactionID)
	assert.Equal(t, "tx-1", *req.TransactionID)
	require.Len(t, req.Artworks, 1)
	assert.Equal(t, "First", *req.Artworks[0].Title)
	assert.Nil(t, req.Artworks[0].Desc)
	assert.Equal(t, int64(0), *req.Artworks[0].Rating)
	require.NotNil(t, req.Artworks[0].DataSHA256)
	assert.Equal(t, IntID(12), req.Accounts[0].ID)
	assert.Equal(t, StringID("cat"), req.Tags[0].ID)
	assert.Equal(t, "account", req.ArtAccLinks[0].Link)
	assert.Equal(t, map[string]any{"x-custom": true}, req.Extra)

	back, err := req.Document()
	require.NoError(t, err)
	assert.Equal(t, true, back["x-custom"])
	assert.Equal(t, "example.com", back["platform"])
}

func TestParseRequestRejectsWrongShapes(t *testing.T) {
	_, err := ParseRequest(Document{"platform": "p", "artworks": map[string]any{}})
	assert.Error(t, err)

	_, err = ParseRequest(Document{"platform": "p", "accounts": []any{map[string]any{"id": true}}})
	assert.Error(t, err)
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		want    Response
		wantErr bool
	}{
		{"success", Document{"success": true}, Succeeded(), false},
		{"failure", Document{"success": false, "reason": "bad scheme"}, Failed("bad scheme"), false},
		{"transaction", Document{"success": true, "transaction_id": "t"}, Response{Success: true, TransactionID: ptr("t")}, false},
		{"missing success", Document{"reason": "x"}, Response{}, true},
		{"string success", Document{"success": "yes"}, Response{}, true},
		{"numeric reason", Document{"success": false, "reason": 3.0}, Response{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.doc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseResponse(Document{})
	assert.True(t, errors.Is(err, ErrMissingSuccess))
}

func TestResponseDocument(t *testing.T) {
	assert.Equal(t, Document{"success": true}, Succeeded().Document())
	assert.Equal(t, Document{"success": false, "reason": "nope"}, Failed("nope").Document())
	assert.Equal(t, "nope", Failed("nope").ReasonText())
	assert.Equal(t, "", Succeeded().ReasonText())
}

func TestDocumentClone(t *testing.T) {
	d := Document{"a": 1}
	c := d.Clone()
	c["b"] = 2
	assert.NotContains(t, d, "b")
}

func ptr[T any](v T) *T { return &v }

func TestLargeIntegersKeepPrecision(t *testing.T) {
	var doc Document
	require.NoError(t, Unmarshal([]byte(`{"platform":"tumbex","accounts":[{"id":700000000000000001}],"x-post":9007199254740993}`), &doc))

	req, err := ParseRequest(doc)
	require.NoError(t, err)
	assert.Equal(t, IntID(700000000000000001), req.Accounts[0].ID)
	assert.Equal(t, json.Number("9007199254740993"), req.Extra["x-post"])

	back, err := req.Document()
	require.NoError(t, err)
	b, err := json.Marshal(back)
	require.NoError(t, err)
	assert.Equal(t, `{"accounts":[{"id":700000000000000001}],"platform":"tumbex","x-post":9007199254740993}`, string(b))
}

func TestUnmarshalRejectsTrailingData(t *testing.T) {
	var v any
	assert.ErrorIs(t, Unmarshal([]byte(`{} {}`), &v), ErrTrailingData)
	assert.ErrorIs(t, Unmarshal([]byte(`{}}`), &v), ErrTrailingData)
	assert.NoError(t, Unmarshal([]byte("{}\n  "), &v))
}
