package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentMergeLastWriteWins(t *testing.T) {
	existing := Document{"a": float64(1), "b": float64(2)}
	incoming := Document{"b": float64(3), "c": float64(4)}

	merged := existing.Merge(incoming)

	assert.Equal(t, Document{"a": float64(1), "b": float64(3), "c": float64(4)}, merged)
	// Originals are untouched.
	assert.Equal(t, float64(2), existing["b"])
}

func TestDocumentMergeReplacesNestedWholesale(t *testing.T) {
	existing := Document{"nested": map[string]any{"x": "1", "y": "2"}}
	incoming := Document{"nested": map[string]any{"x": "9"}}

	merged := existing.Merge(incoming)

	// Top-level fields are replaced, not deep-merged.
	assert.Equal(t, map[string]any{"x": "9"}, merged["nested"])
}

func TestParseDocumentRoundTrip(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"status":"approved","count":3}`))
	require.NoError(t, err)
	assert.Equal(t, "approved", doc["status"])

	raw, err := doc.JSON()
	require.NoError(t, err)

	again, err := ParseDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestParseDocumentEmpty(t *testing.T) {
	doc, err := ParseDocument(nil)
	require.NoError(t, err)
	assert.Empty(t, doc)

	doc, err = ParseDocument([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestDocumentStringField(t *testing.T) {
	doc := Document{
		"s": "text",
		"n": 2.5,
		"i": float64(7),
		"b": true,
		"o": map[string]any{"k": "v"},
	}

	for field, want := range map[string]string{
		"s": "text",
		"n": "2.5",
		"i": "7",
		"b": "true",
		"o": `{"k":"v"}`,
	} {
		got, ok := doc.StringField(field)
		require.True(t, ok, field)
		assert.Equal(t, want, got, field)
	}

	_, ok := doc.StringField("missing")
	assert.False(t, ok)
}

func TestInstanceDataMerge(t *testing.T) {
	now := time.Now().UTC()
	data := &WorkflowInstanceData{WorkflowInstanceID: "wi-1"}

	data.MergeData(Document{"a": "1"}, now)
	data.MergeData(Document{"a": "2", "b": "3"}, now.Add(time.Second))

	assert.Equal(t, Document{"a": "2", "b": "3"}, data.Data)
	assert.Equal(t, now.Add(time.Second), data.UpdatedAt)
}
