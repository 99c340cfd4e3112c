package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duotalk/duotalk/llm"
	"github.com/duotalk/duotalk/llm/retry"
	"github.com/duotalk/duotalk/testutil"
	"github.com/duotalk/duotalk/testutil/mocks"
	"github.com/duotalk/duotalk/types"
)

func fastRetry(maxAttempts int) *retry.Policy {
	return &retry.Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestSession(t *testing.T, p1, p2 *mocks.MockProvider, cfg types.SessionConfig, opts ...func(*Options)) *Session {
	t.Helper()

	o := Options{
		Session:     cfg,
		RetryPolicy: fastRetry(3),
		Logger:      zap.NewNop(),
	}
	for _, fn := range opts {
		fn(&o)
	}

	sess, err := NewSession(
		&Agent{Config: types.AgentConfig{Kind: types.ProviderOllama, Model: "m", Name: "alice"}, Provider: p1},
		&Agent{Config: types.AgentConfig{Kind: types.ProviderOllama, Model: "m", Name: "bob"}, Provider: p2},
		o,
	)
	require.NoError(t, err)
	return sess
}

func TestSessionCompletesAfterMaxTurns(t *testing.T) {
	t.Parallel()

	p1 := mocks.NewMockProvider().WithName("ollama").WithResponse("from alice")
	p2 := mocks.NewMockProvider().WithName("ollama").WithResponse("from bob")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 4})

	state, err := sess.Run(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
	assert.Equal(t, 4, sess.Turns())

	// 发言按奇偶交替：alice 2 次，bob 2 次
	assert.Equal(t, 2, p1.CallCount())
	assert.Equal(t, 2, p2.CallCount())
}

func TestSessionEmptyPromptStillSeeded(t *testing.T) {
	t.Parallel()

	// 空提示词也原样注入首发言者的上下文，接不接受由 Provider 决定
	p1 := mocks.NewMockProvider().WithResponse("a")
	p2 := mocks.NewMockProvider().WithResponse("b")
	sess := newTestSession(t, p1, p2, types.SessionConfig{MaxTurns: 1})

	state, err := sess.Run(testutil.TestContext(t))
	require.NoError(t, err)
	require.Equal(t, StateCompleted, state)

	calls := p1.Calls()
	require.Len(t, calls, 1)
	msgs := calls[0].Request.Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Empty(t, msgs[0].Content)
}

func TestSessionScriptedReplies(t *testing.T) {
	t.Parallel()

	p1 := mocks.NewMockProvider().WithScript("one", "three")
	p2 := mocks.NewMockProvider().WithScript("two", "four")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 4})

	state, err := sess.Run(testutil.TestContext(t))
	require.NoError(t, err)
	require.Equal(t, StateCompleted, state)

	aliceView, err := sess.Transcript(0)
	require.NoError(t, err)
	testutil.AssertMessagesEqual(t, []types.Message{
		types.NewUserMessage("start"),
		types.NewAssistantMessage("one"),
		types.NewUserMessage("two"),
		types.NewAssistantMessage("three"),
		types.NewUserMessage("four"),
	}, aliceView)
}

func TestSessionZeroTurnsCompletesImmediately(t *testing.T) {
	t.Parallel()

	p1 := mocks.NewMockProvider()
	p2 := mocks.NewMockProvider()
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 0})

	state, err := sess.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
	assert.Equal(t, 0, sess.Turns())
	// 零回合不会触碰任何 Provider
	assert.Equal(t, 0, p1.CallCount())
	assert.Equal(t, 0, p2.CallCount())
}

// 回声往返：两轮之后 bob 的上下文是 [alice 的回复(user), bob 的回复(assistant)]，
// alice 的上下文是 [初始提示(user), 自己的回复(assistant), bob 的回复(user)]。
func TestSessionEchoRoundTrip(t *testing.T) {
	t.Parallel()

	p1 := mocks.NewMockProvider().WithResponse("alice says hi")
	p2 := mocks.NewMockProvider().WithResponse("bob says hello")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start talking", MaxTurns: 2})

	state, err := sess.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateCompleted, state)

	aliceView, err := sess.Transcript(0)
	require.NoError(t, err)
	testutil.AssertRoleSequence(t, aliceView, types.RoleUser, types.RoleAssistant, types.RoleUser)
	assert.Equal(t, "start talking", aliceView[0].Content)
	assert.Equal(t, "alice says hi", aliceView[1].Content)
	assert.Equal(t, "bob says hello", aliceView[2].Content)

	bobView, err := sess.Transcript(1)
	require.NoError(t, err)
	testutil.AssertRoleSequence(t, bobView, types.RoleUser, types.RoleAssistant)
	assert.Equal(t, "alice says hi", bobView[0].Content)
	assert.Equal(t, "bob says hello", bobView[1].Content)

	// bob 收到的请求里必须带着 alice 的回复
	calls := p2.Calls()
	require.Len(t, calls, 1)
	msgs := calls[0].Request.Messages
	require.NotEmpty(t, msgs)
	assert.Equal(t, "alice says hi", msgs[len(msgs)-1].Content)
}

func TestSessionStoresAdvanceTogether(t *testing.T) {
	t.Parallel()

	p1 := mocks.NewMockProvider().WithResponse("a")
	p2 := mocks.NewMockProvider().WithResponse("b")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "seed", MaxTurns: 6})

	_, err := sess.Run(context.Background())
	require.NoError(t, err)

	// 每个完成的回合给两个 store 各加一条；alice 额外持有种子消息
	assert.Equal(t, 6+1, sess.agents[0].Store.Len())
	assert.Equal(t, 6, sess.agents[1].Store.Len())
}

func TestSessionAuthErrorFailsWithoutRetry(t *testing.T) {
	t.Parallel()

	authErr := types.NewError(types.ErrUnauthorized, "bad key").WithProvider("openai")
	p1 := mocks.NewMockProvider().WithError(authErr)
	p2 := mocks.NewMockProvider()
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 5})

	state, err := sess.Run(context.Background())
	assert.Equal(t, StateFailed, state)
	require.Error(t, err)

	// 认证错误零重试
	assert.Equal(t, 1, p1.CallCount())
	assert.Equal(t, 0, p2.CallCount())

	var turnErr *TurnError
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, 0, turnErr.TurnIndex)
	assert.Equal(t, "alice", turnErr.Agent)
	assert.Equal(t, types.ErrUnauthorized, types.GetErrorCode(turnErr.Err))
}

func TestSessionNetworkFailureExhaustsRetries(t *testing.T) {
	t.Parallel()

	netErr := types.NewError(types.ErrNetwork, "connection refused").WithRetryable(true)
	p1 := mocks.NewMockProvider().WithError(netErr)
	p2 := mocks.NewMockProvider()
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 5})

	state, err := sess.Run(context.Background())
	assert.Equal(t, StateFailed, state)
	require.Error(t, err)

	// MaxAttempts=3：一次初始 + 两次重试
	assert.Equal(t, 3, p1.CallCount())

	// 第 1 回合失败：没有任何消息被追加（种子除外）
	assert.Equal(t, 1, sess.agents[0].Store.Len())
	assert.Equal(t, 0, sess.agents[1].Store.Len())
	assert.Equal(t, 0, sess.Turns())

	turnErr := sess.Err()
	require.NotNil(t, turnErr)
	assert.Equal(t, 0, turnErr.TurnIndex)
	assert.Equal(t, "alice", turnErr.Agent)
}

func TestSessionRetryThenSucceed(t *testing.T) {
	t.Parallel()

	rateErr := types.NewError(types.ErrRateLimited, "slow down").WithRetryable(true)
	p1 := mocks.NewMockProvider().WithResponse("ok").
		WithErrorOnCall(1, rateErr)
	p2 := mocks.NewMockProvider().WithResponse("fine")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 2})

	state, err := sess.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)
	// 第一次调用失败后重试成功
	assert.Equal(t, 2, p1.CallCount())
	assert.Equal(t, 2, sess.Turns())
}

func TestSessionFailurePreservesTranscript(t *testing.T) {
	t.Parallel()

	boom := types.NewError(types.ErrMalformedResponse, "empty reply")
	// bob 在第 2 回合失败
	p1 := mocks.NewMockProvider().WithResponse("turn one reply")
	p2 := mocks.NewMockProvider().WithError(boom)
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 4})

	state, err := sess.Run(context.Background())
	assert.Equal(t, StateFailed, state)
	require.Error(t, err)

	// 第 1 回合的成果保留
	assert.Equal(t, 1, sess.Turns())
	aliceView, _ := sess.Transcript(0)
	require.Len(t, aliceView, 2)
	assert.Equal(t, "turn one reply", aliceView[1].Content)

	turnErr := sess.Err()
	require.NotNil(t, turnErr)
	assert.Equal(t, 1, turnErr.TurnIndex)
	assert.Equal(t, "bob", turnErr.Agent)
}

func TestSessionCancelViaContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	p1 := mocks.NewMockProvider().WithResponse("a")
	p2 := mocks.NewMockProvider().WithResponse("b")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 100, TurnDelay: 5 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		defer close(done)
		state, err := sess.Run(ctx)
		assert.NoError(t, err)
		assert.Equal(t, StateCancelled, state)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not cancel in time")
	}

	// 取消后不再有新回合；两个 store 不会出现半条消息：
	// 种子一条，之后每个完成的回合恰好给两个 store 各加一条
	turns := sess.Turns()
	assert.Equal(t, 2*turns+1, sess.agents[0].Store.Len()+sess.agents[1].Store.Len())
}

func TestSessionPreCancelledContext(t *testing.T) {
	t.Parallel()

	p1 := mocks.NewMockProvider().WithResponse("a")
	p2 := mocks.NewMockProvider().WithResponse("b")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 10})

	state, err := sess.Run(testutil.CancelledContext())
	assert.NoError(t, err)
	assert.Equal(t, StateCancelled, state)
	assert.Zero(t, p1.CallCount())
	assert.Zero(t, p2.CallCount())
}

func TestSessionStop(t *testing.T) {
	t.Parallel()

	p1 := mocks.NewMockProvider().WithResponse("a")
	p2 := mocks.NewMockProvider().WithResponse("b")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 100, TurnDelay: 5 * time.Millisecond})

	done := make(chan State, 1)
	go func() {
		state, _ := sess.Run(context.Background())
		done <- state
	}()

	// 至少完成一个回合后再停
	testutil.AssertEventuallyTrue(t, func() bool { return sess.Turns() > 0 }, 5*time.Second)
	sess.Stop()

	select {
	case state := <-done:
		assert.Equal(t, StateCancelled, state)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not cancel the session")
	}
}

func TestSessionCancelDuringProviderCall(t *testing.T) {
	t.Parallel()

	p1 := mocks.NewMockProvider().WithResponse("a").WithDelay(time.Second)
	p2 := mocks.NewMockProvider().WithResponse("b")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 10})

	state, err := sess.Run(testutil.TestContextWithTimeout(t, 50*time.Millisecond))
	assert.NoError(t, err)
	assert.Equal(t, StateCancelled, state)
	assert.Equal(t, 0, sess.Turns())
	assert.Equal(t, 1, p1.CallCount())
}

func TestSessionFailsAfterSuccessfulTurns(t *testing.T) {
	t.Parallel()

	// alice 第一次成功，之后持续可重试失败，直到重试耗尽
	p1 := mocks.NewMockProvider().WithResponse("a").WithFailAfter(1)
	p2 := mocks.NewMockProvider().WithResponse("b")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "start", MaxTurns: 6})

	state, err := sess.Run(testutil.TestContext(t))
	assert.Equal(t, StateFailed, state)
	require.Error(t, err)

	assert.Equal(t, 2, sess.Turns())
	turnErr := sess.Err()
	require.NotNil(t, turnErr)
	assert.Equal(t, 2, turnErr.TurnIndex)
	assert.Equal(t, "alice", turnErr.Agent)
	// 1 次成功 + 3 次重试尝试
	assert.Equal(t, 4, p1.CallCount())
}

func TestSessionTrimsProviderContext(t *testing.T) {
	t.Parallel()

	var seen []int
	p1 := mocks.NewMockProvider().WithCompletionFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		seen = append(seen, len(req.Messages))
		return &llm.ChatResponse{
			Provider: "mock",
			Model:    req.Model,
			Choices:  []llm.ChatChoice{{Message: types.NewAssistantMessage("r"), FinishReason: "stop"}},
		}, nil
	})
	p2 := mocks.NewMockProvider().WithResponse("b")
	sess := newTestSession(t, p1, p2, types.SessionConfig{
		InitialPrompt:    "start",
		MaxTurns:         6,
		KeepLastMessages: 2,
	})

	state, err := sess.Run(testutil.TestContext(t))
	require.NoError(t, err)
	require.Equal(t, StateCompleted, state)

	// 每次调用看到的上下文都被裁剪到最近 2 条
	require.Len(t, seen, 3)
	for _, n := range seen {
		assert.LessOrEqual(t, n, 2)
		assert.Positive(t, n)
	}
}

func TestSessionCannotRunTwice(t *testing.T) {
	t.Parallel()

	p1 := mocks.NewMockProvider().WithResponse("a")
	p2 := mocks.NewMockProvider().WithResponse("b")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "s", MaxTurns: 1})

	_, err := sess.Run(context.Background())
	require.NoError(t, err)

	_, err = sess.Run(context.Background())
	require.Error(t, err)
	var invalid ErrInvalidTransition
	assert.ErrorAs(t, err, &invalid)
}

func TestSessionEvents(t *testing.T) {
	t.Parallel()

	p1 := mocks.NewMockProvider().WithResponse("a")
	p2 := mocks.NewMockProvider().WithResponse("b")
	sess := newTestSession(t, p1, p2, types.SessionConfig{InitialPrompt: "seed", MaxTurns: 2})

	state, err := sess.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateCompleted, state)

	var stateChanges, messages int
	for evt := range sess.Events() {
		switch evt.Type {
		case EventStateChanged:
			stateChanges++
		case EventMessageAppended:
			messages++
		}
	}

	// idle→running, running→completed
	assert.Equal(t, 2, stateChanges)
	// 种子 + 2 回合
	assert.Equal(t, 3, messages)
}

func TestSessionObserver(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	p1 := mocks.NewMockProvider().WithResponse("a").WithTokenUsage(12, 7)
	p2 := mocks.NewMockProvider().WithError(types.NewError(types.ErrForbidden, "nope"))
	sess := newTestSession(t, p1, p2,
		types.SessionConfig{InitialPrompt: "s", MaxTurns: 4},
		func(o *Options) { o.Observer = obs },
	)

	state, _ := sess.Run(context.Background())
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, 1, obs.completed)
	assert.Equal(t, 1, obs.failed)
	assert.GreaterOrEqual(t, obs.transitions, 2)
	assert.Equal(t, 12, obs.lastUsage.PromptTokens)
	assert.Equal(t, 7, obs.lastUsage.CompletionTokens)

	// 每次 Provider 调用都上报一次（含失败的那次）
	assert.Equal(t, p1.CallCount()+p2.CallCount(), obs.requests)
	assert.Equal(t, p2.CallCount(), obs.requestFails)
}

type recordingObserver struct {
	requests     int
	requestFails int
	completed    int
	failed       int
	transitions  int
	lastUsage    types.TokenUsage
}

func (r *recordingObserver) ProviderRequest(session, provider, model string, duration time.Duration, success bool) {
	r.requests++
	if !success {
		r.requestFails++
	}
}
func (r *recordingObserver) TurnCompleted(session, agent string, attempts int, usage types.TokenUsage) {
	r.completed++
	r.lastUsage = usage
}
func (r *recordingObserver) TurnFailed(session, agent string, attempts int) { r.failed++ }
func (r *recordingObserver) StateChanged(session string, from, to State)    { r.transitions++ }

func TestNewSessionValidation(t *testing.T) {
	t.Parallel()

	p := mocks.NewMockProvider()
	valid := types.SessionConfig{MaxTurns: 1}

	_, err := NewSession(nil, &Agent{Provider: p}, Options{Session: valid})
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))

	_, err = NewSession(&Agent{Provider: p}, &Agent{}, Options{Session: valid})
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))

	_, err = NewSession(&Agent{Provider: p}, &Agent{Provider: p}, Options{
		Session: types.SessionConfig{MaxTurns: -1},
	})
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}
