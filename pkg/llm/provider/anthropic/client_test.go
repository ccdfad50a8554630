package anthropic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"conclave/pkg/llm"
)

func TestSplitSystemAndUserExtractsSystem(t *testing.T) {
	system, user, err := splitSystemAndUser([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "be concise"},
		{Role: llm.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	require.Equal(t, "be concise", system)
	require.Equal(t, "hello", user)
}

func TestSplitSystemAndUserJoinsMultipleSystemMessages(t *testing.T) {
	system, _, err := splitSystemAndUser([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "first"},
		{Role: llm.RoleSystem, Content: "second"},
		{Role: llm.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	require.Equal(t, "first\n\nsecond", system)
}

func TestSplitSystemAndUserRejectsNoUserContent(t *testing.T) {
	_, _, err := splitSystemAndUser([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "be concise"},
	})
	require.Error(t, err)
}

func TestNewDefaultsModelWhenEmpty(t *testing.T) {
	c := New("test-key", "")
	require.Equal(t, defaultModel, c.model)
	require.Equal(t, "anthropic", c.Name())
}

func TestNewHonorsExplicitModel(t *testing.T) {
	c := New("test-key", "claude-opus-4-20250514")
	require.Equal(t, "claude-opus-4-20250514", string(c.model))
}
