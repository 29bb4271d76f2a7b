package ocr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"pdf-rag/internal/models"
)

type fakeEngine struct {
	mu      sync.Mutex
	results map[string][]string
	errs    map[string]error
	block   map[string]chan struct{}
	calls   []string
}

func (f *fakeEngine) Recognize(_ context.Context, img models.ImageData) ([]string, error) {
	key := string(img.Bytes)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	ch := f.block[key]
	f.mu.Unlock()
	if ch != nil {
		<-ch
	}
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.results[key], nil
}

func image(name string) models.Image {
	return models.NewImage(name, func() (models.ImageData, error) {
		return models.ImageData{MimeType: "image/png", Bytes: []byte(name)}, nil
	})
}

func staticHandle(e Engine) *Handle {
	return NewHandle(func(context.Context) (Engine, error) { return e, nil }, 1, 0)
}

func TestRecognizerProcess(t *testing.T) {
	engine := &fakeEngine{
		results: map[string][]string{
			"a":       {"line a1", "line a2"},
			"b":       {"line b"},
			"skipped": {"should not appear"},
		},
		errs: map[string]error{"bad": errors.New("engine exploded")},
	}
	pages := []models.Page{
		{PageNum: 1, Text: strings.Repeat("x", 101), Images: []models.Image{image("skipped")}},
		{PageNum: 2, Text: models.EmptyPageText(2), Images: []models.Image{
			image("a"),
			image("bad"),
			models.NewImage("empty", func() (models.ImageData, error) { return models.ImageData{}, nil }),
			models.NewImage("broken", func() (models.ImageData, error) { return models.ImageData{}, errors.New("corrupt") }),
			image("b"),
		}},
		{PageNum: 3, Text: "short"},
	}

	got, err := NewRecognizer(staticHandle(engine), 100, time.Second).Process(context.Background(), pages)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if want := "line a1\nline a2\nline b"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	for _, c := range engine.calls {
		if c == "skipped" {
			t.Fatal("page with enough text should not be recognized")
		}
	}
}

func TestRecognizerTimeoutIsPerImage(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	engine := &fakeEngine{
		results: map[string][]string{"fast": {"fast text"}},
		block:   map[string]chan struct{}{"slow": release},
	}
	pages := []models.Page{{PageNum: 1, Images: []models.Image{image("slow"), image("fast")}}}

	start := time.Now()
	got, err := NewRecognizer(staticHandle(engine), 100, 20*time.Millisecond).Process(context.Background(), pages)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != "fast text" {
		t.Fatalf("got %q", got)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout not enforced")
	}
}

func TestRecognizerHandleFailure(t *testing.T) {
	initErr := errors.New("model download failed")
	h := NewHandle(func(context.Context) (Engine, error) { return nil, initErr }, 2, 0)
	_, err := NewRecognizer(h, 100, time.Second).Process(context.Background(), nil)
	if !errors.Is(err, initErr) {
		t.Fatalf("got %v", err)
	}
}

func TestHandleRetriesThenSucceeds(t *testing.T) {
	calls := 0
	engine := &fakeEngine{}
	h := NewHandle(func(context.Context) (Engine, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("file in use")
		}
		return engine, nil
	}, 3, time.Millisecond)

	got, err := h.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != engine || calls != 3 {
		t.Fatalf("got %v after %d calls", got, calls)
	}

	again, err := h.Get(context.Background())
	if err != nil || again != engine || calls != 3 {
		t.Fatalf("engine should be built once, calls=%d err=%v", calls, err)
	}
}

func TestHandleGivesUp(t *testing.T) {
	calls := 0
	initErr := errors.New("no gpu")
	h := NewHandle(func(context.Context) (Engine, error) {
		calls++
		return nil, initErr
	}, 3, time.Millisecond)

	_, err := h.Get(context.Background())
	if !errors.Is(err, initErr) {
		t.Fatalf("got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestHandleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := NewHandle(func(context.Context) (Engine, error) { return nil, errors.New("fail") }, 3, time.Hour)

	_, err := h.Get(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}

type stubGenerator struct {
	content string
	err     error
	got     []llms.MessageContent
}

func (s *stubGenerator) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	s.got = messages
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.content}}}, nil
}

func TestVisionEngine(t *testing.T) {
	gen := &stubGenerator{content: "Line one\n\n  Line two \n"}
	img := models.ImageData{MimeType: "image/jpeg", Bytes: []byte{0xff, 0xd8}}

	got, err := NewVisionEngine(gen).Recognize(context.Background(), img)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if strings.Join(got, "|") != "Line one|Line two" {
		t.Fatalf("got %q", got)
	}

	if len(gen.got) != 1 || len(gen.got[0].Parts) != 2 {
		t.Fatalf("unexpected messages %+v", gen.got)
	}
	bin, ok := gen.got[0].Parts[1].(llms.BinaryContent)
	if !ok || bin.MIMEType != "image/jpeg" || len(bin.Data) != 2 {
		t.Fatalf("image not sent as binary part: %#v", gen.got[0].Parts[1])
	}

	empty := &stubGenerator{content: "   "}
	if got, err := NewVisionEngine(empty).Recognize(context.Background(), img); err != nil || len(got) != 0 {
		t.Fatalf("blank reply should mean no text, got %q, %v", got, err)
	}

	failing := &stubGenerator{err: errors.New("rate limited")}
	if _, err := NewVisionEngine(failing).Recognize(context.Background(), img); err == nil {
		t.Fatal("expected error")
	}
}
