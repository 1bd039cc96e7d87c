package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_WrapsPayload(t *testing.T) {
	frame, err := Encode(EventSearch, Query{Query: "r2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"search","data":{"query":"r2"}}`, string(frame))
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)
}

func TestErrorPayload_Sentinels(t *testing.T) {
	raw, err := json.Marshal(NewErrorPayload("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"page":-1,"resultCount":-1,"error":"boom"}`, string(raw))
}
