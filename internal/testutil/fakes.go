package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
)

// BagOfWords maps text to a normalized vector of hashed lowercase word
// counts. Texts sharing words end up close in L2 and cosine distance.
func BagOfWords(text string, dim int) []float32 {
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

// NewEmbedder returns a langchaingo embedder backed by BagOfWords. Texts
// containing fail are rejected.
func NewEmbedder(dim int, fail string) *embeddings.EmbedderImpl {
	client := embeddings.EmbedderClientFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, 0, len(texts))
		for _, t := range texts {
			if fail != "" && strings.Contains(t, fail) {
				return nil, errors.New("embedding service unavailable")
			}
			out = append(out, BagOfWords(t, dim))
		}
		return out, nil
	})
	e, _ := embeddings.NewEmbedder(client)
	return e
}

// FakeLLM answers GenerateContent with Reply applied to the human prompt and
// records every call. A streaming func in the options receives the reply in
// one chunk.
type FakeLLM struct {
	Reply func(prompt string) (string, error)

	mu    sync.Mutex
	calls []FakeCall
}

type FakeCall struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Messages: messages, Options: opts})
	f.mu.Unlock()

	content, err := f.Reply(HumanPrompt(messages))
	if err != nil {
		return nil, err
	}
	if opts.StreamingFunc != nil && content != "" {
		if err := opts.StreamingFunc(ctx, []byte(content)); err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}, nil
}

func (f *FakeLLM) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// HumanPrompt returns the text of the last human message.
func HumanPrompt(messages []llms.MessageContent) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llms.ChatMessageTypeHuman {
			continue
		}
		var b strings.Builder
		for _, p := range messages[i].Parts {
			if t, ok := p.(llms.TextContent); ok {
				b.WriteString(t.Text)
			}
		}
		return b.String()
	}
	return ""
}
