package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/erozihovefi85-debug/openclaw-room/backend/internal/stage"
)

func TestNewConversation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := NewConversation("u", "casual_chat", "帮我挑一款轻薄笔记本", now)
	assert.Equal(t, stage.ModeCasual, c.Mode)
	assert.Equal(t, "casual_chat", c.Tab)
	assert.Equal(t, "帮我挑一款轻薄笔记本...", c.Name)
	assert.Len(t, c.ID, 26)

	c = NewConversation("u", "standard_sourcing", string(make([]rune, 80)), now)
	assert.Equal(t, stage.ModeStandard, c.Mode)
	assert.Equal(t, "sourcing", c.Tab)
	assert.Equal(t, nameLength+3, len([]rune(c.Name)))
}

func TestIsEngineID(t *testing.T) {
	assert.True(t, IsEngineID("3f0c2a8e-6a41-4a5b-9d7e-1c2b3a4d5e6f"))
	assert.True(t, IsEngineID("legacy-id"))
	assert.False(t, IsEngineID("01J8Z3V4K5M6N7P8Q9R0S1T2U3"))
}
