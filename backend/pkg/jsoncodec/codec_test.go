package jsoncodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ConversationID string `json:"conversationId"`
	Count          int    `json:"count,omitempty"`
}

func TestCodec(t *testing.T) {
	c := New()
	assert.Equal(t, "json", c.Name())

	b, err := c.Marshal(&sample{ConversationID: "c1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"conversationId":"c1"}`, string(b))

	var got sample
	require.NoError(t, c.Unmarshal([]byte(`{"conversationId":"c2","count":3}`), &got))
	assert.Equal(t, sample{ConversationID: "c2", Count: 3}, got)
}

func TestCodec_EmptyBodyLeavesZeroValue(t *testing.T) {
	var got sample
	require.NoError(t, New().Unmarshal(nil, &got))
	assert.Equal(t, sample{}, got)
}

func TestCodec_RejectsUnknownFields(t *testing.T) {
	var got sample
	assert.Error(t, New().Unmarshal([]byte(`{"bogus":true}`), &got))
}
