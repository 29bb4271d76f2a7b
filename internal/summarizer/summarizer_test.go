package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
	"pdf-rag/internal/testutil"
)

func newSummarizer(reply func(string) (string, error)) (*Summarizer, *testutil.FakeLLM) {
	llm := &testutil.FakeLLM{Reply: reply}
	return NewSummarizer(llm, &config.DefaultConfig().RAG), llm
}

func TestSummarize(t *testing.T) {
	s, llm := newSummarizer(func(prompt string) (string, error) {
		return "Overview: the sky is blue and water is wet.", nil
	})

	got := s.Summarize(context.Background(), "The sky is blue. Water is wet.")
	if !strings.Contains(got, "blue") || !strings.Contains(got, "wet") {
		t.Fatalf("summary %q", got)
	}

	call := llm.Calls()[0]
	if call.Options.Temperature != 0.7 || call.Options.MaxTokens != 2048 {
		t.Fatalf("unexpected options %+v", call.Options)
	}
	prompt := testutil.HumanPrompt(call.Messages)
	for _, want := range []string{"The sky is blue. Water is wet.", "brief overview", "bullet points", "key findings"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSummarizeTruncatesLongText(t *testing.T) {
	s, llm := newSummarizer(func(string) (string, error) { return "short", nil })
	long := strings.Repeat("a", 24000) + strings.Repeat("b", 10)

	s.Summarize(context.Background(), long)

	prompt := testutil.HumanPrompt(llm.Calls()[0].Messages)
	if strings.Contains(prompt, "abbb") {
		t.Fatal("text beyond the budget reached the prompt")
	}
	if !strings.Contains(prompt, models.TruncationMarker) {
		t.Fatal("truncation marker missing")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		text string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"héllo wörld", 5, "héllo" + models.TruncationMarker},
		{"anything", 0, "anything"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.text, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
		}
	}
}

func TestSummarizeFailureMessages(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		reply func(string) (string, error)
		want  string
	}{
		{"blank text", " \n\t", nil, msgNoText},
		{"empty reply", "text", func(string) (string, error) { return "", nil }, msgEmptySummary},
		{"model error", "text", func(string) (string, error) { return "", errors.New("timeout") }, "Model error: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSummarizer(tt.reply)
			if got := s.Summarize(context.Background(), tt.text); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
