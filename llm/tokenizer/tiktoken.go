package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/duotalk/duotalk/types"
)

// modelEncodings maps OpenAI-family model names to their tiktoken encoding.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4.1":       "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// Tiktoken is a types.Tokenizer backed by the model's real BPE encoding.
// Initialization is lazy because tiktoken may download encoding data on
// first use; on init failure the tokenizer degrades to character estimation
// rather than failing the conversation.
type Tiktoken struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error

	fallback *types.EstimateTokenizer
	// 每条消息的固定封装开销（role 标记等）
	msgOverhead int
}

// ForModel returns the best tokenizer for the given model: a tiktoken-backed
// one for OpenAI-family models, the character estimator otherwise.
func ForModel(model string) types.Tokenizer {
	enc, ok := modelEncodings[model]
	if !ok {
		for prefix, e := range modelEncodings {
			if strings.HasPrefix(model, prefix) {
				enc, ok = e, true
				break
			}
		}
	}
	if !ok {
		return types.NewEstimateTokenizer()
	}
	return &Tiktoken{
		model:       model,
		encoding:    enc,
		fallback:    types.NewEstimateTokenizer(),
		msgOverhead: 4,
	}
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = err
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens counts tokens in text.
func (t *Tiktoken) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessageTokens counts tokens in a single message.
func (t *Tiktoken) CountMessageTokens(msg types.Message) int {
	tokens := t.msgOverhead
	tokens += t.CountTokens(msg.Content)
	if msg.Name != "" {
		tokens += t.CountTokens(msg.Name)
	}
	return tokens
}

// CountMessagesTokens counts total tokens in a message slice.
func (t *Tiktoken) CountMessagesTokens(msgs []types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += t.CountMessageTokens(msg)
	}
	return total
}
