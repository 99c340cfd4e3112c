package quick

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duotalk/duotalk/conversation"
	"github.com/duotalk/duotalk/testutil"
	"github.com/duotalk/duotalk/testutil/mocks"
	"github.com/duotalk/duotalk/types"
)

func TestNewAgentWithProvider(t *testing.T) {
	t.Parallel()

	p := mocks.NewMockProvider().WithName("stub").WithModels("m1", "m2")
	a, err := NewAgent(
		WithProvider(p),
		WithName("alice"),
		WithModel("m1"),
		WithSystemPrompt("be nice"),
	)
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Config.Name)
	assert.Equal(t, "m1", a.Config.Model)
	assert.Equal(t, "be nice", a.Config.SystemPrompt)

	// 预构建的 Provider 原样透传
	models, err := a.Provider.ListModels(testutil.TestContext(t))
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "m1", models[0].ID)
	assert.Equal(t, "m2", models[1].ID)
}

func TestNewAgentShortcuts(t *testing.T) {
	t.Parallel()

	// Ollama 不需要 API Key
	a, err := NewAgent(WithOllama("llama3.2"))
	require.NoError(t, err)
	assert.Equal(t, "ollama", a.Provider.Name())
	assert.Equal(t, "ollama", a.Config.Name)
	assert.Equal(t, "llama3.2", a.Config.Model)

	// 远程 Provider 带显式 Key
	a, err = NewAgent(WithOpenAI("gpt-4o-mini"), WithAPIKey("sk-test"))
	require.NoError(t, err)
	assert.Equal(t, "openai", a.Provider.Name())

	// 没有指定任何 Provider
	_, err = NewAgent()
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestNewSessionRunsEndToEnd(t *testing.T) {
	t.Parallel()

	a, err := NewAgent(WithProvider(mocks.NewMockProvider().WithResponse("hi")), WithName("alice"))
	require.NoError(t, err)
	b, err := NewAgent(WithProvider(mocks.NewMockProvider().WithResponse("hello")), WithName("bob"))
	require.NoError(t, err)

	sess, err := NewSession(a, b, "say hi", 2)
	require.NoError(t, err)

	state, err := sess.Run(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, conversation.StateCompleted, state)
	assert.Equal(t, 2, sess.Turns())
}
