package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"idgaf/internal/fault"
	"idgaf/pkg/types"
)

// fakeAdapter is an in-memory format driver for engine tests. It produces a
// scripted token sequence and counts unloads per instance id.
type fakeAdapter struct {
	mu      sync.Mutex
	format  types.ModelFormat
	caps    types.AdapterCapabilities
	tokens  []string
	loadErr error
	ops     []types.Op
	embed   []float32
	unloads map[string]int
}

func newFakeAdapter(tokens ...string) *fakeAdapter {
	return &fakeAdapter{
		format:  types.FormatGGUF,
		caps:    types.AdapterCapabilities{Streaming: true},
		tokens:  tokens,
		ops:     []types.Op{types.OpGenerate, types.OpChat, types.OpEmbed},
		unloads: make(map[string]int),
	}
}

func (a *fakeAdapter) Format() types.ModelFormat { return a.format }

func (a *fakeAdapter) Modalities() []types.ModelType {
	return []types.ModelType{types.TypeLLM, types.TypeEmbedding}
}

func (a *fakeAdapter) CanHandle(path string, _ *types.ModelInfo) bool {
	return strings.HasSuffix(path, ".gguf")
}

func (a *fakeAdapter) Capabilities() types.AdapterCapabilities { return a.caps }

func (a *fakeAdapter) Load(_ context.Context, _ string, _ types.LoadOptions) (*types.LoadedModel, error) {
	if a.loadErr != nil {
		return nil, a.loadErr
	}
	m := &types.LoadedModel{ID: types.NewModelID(a.format), Adapter: a}
	for _, op := range a.ops {
		switch op {
		case types.OpGenerate:
			m.Generate = func(_ context.Context, _ string, _ types.GenerateOptions, onToken types.TokenFunc) (string, error) {
				var b strings.Builder
				for _, tok := range a.tokens {
					b.WriteString(tok)
					if onToken != nil {
						if err := onToken(tok); err != nil {
							return b.String(), err
						}
					}
				}
				return b.String(), nil
			}
		case types.OpChat:
			m.Chat = func(_ context.Context, msgs []types.ChatMessage, _ types.GenerateOptions, onToken types.TokenFunc) (string, error) {
				reply := "re: " + msgs[len(msgs)-1].Content
				if onToken != nil {
					if err := onToken(reply); err != nil {
						return reply, err
					}
				}
				return reply, nil
			}
		case types.OpEmbed:
			m.Embed = func(_ context.Context, _ string) ([]float32, error) {
				return a.embed, nil
			}
		}
		m.MarkSupported(op)
	}
	return m, nil
}

func (a *fakeAdapter) Unload(_ context.Context, id string) error {
	a.mu.Lock()
	a.unloads[id]++
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) unloadCount(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unloads[id]
}

// writeModelFile drops a dummy model file into dir and returns its path.
func writeModelFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestEngine(t *testing.T, cacheBytes int64) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	e, err := New(Config{
		ModelsDir:  dir,
		CacheBytes: cacheBytes,
		Logger:     zerolog.Nop(),
		Publisher:  NewMemoryPublisher(64),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, dir
}

func TestLoadAndGenerate(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	ad := newFakeAdapter("hel", "lo, ", "world")
	e.RegisterAdapter(ad)
	path := writeModelFile(t, dir, "tiny-1.1.Q4_K_M.gguf", 128)

	m, err := e.LoadModel(context.Background(), path, types.LoadOptions{})
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if m.Info.Format != types.FormatGGUF || m.Info.Size != 128 {
		t.Fatalf("resolved info not attached: %+v", m.Info)
	}

	var streamed []string
	out, err := e.Generate(context.Background(), "", "hi", types.GenerateOptions{}, func(tok string) error {
		streamed = append(streamed, tok)
		return nil
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "hello, world" {
		t.Fatalf("output = %q", out)
	}
	if len(streamed) != 3 {
		t.Fatalf("streamed %d tokens, want 3", len(streamed))
	}
	pm, ok := e.Metrics(m.ID)
	if !ok {
		t.Fatal("no metrics recorded")
	}
	if pm.TokensPerSec <= 0 {
		t.Fatalf("TokensPerSec = %v, want > 0", pm.TokensPerSec)
	}
	if pm.LoadTime < 0 || pm.MemoryBytes != 128 {
		t.Fatalf("load metrics wrong: %+v", pm)
	}
}

func TestGenerateNoModelsLoaded(t *testing.T) {
	e, _ := newTestEngine(t, 1<<20)
	_, err := e.Generate(context.Background(), "", "hi", types.GenerateOptions{}, nil)
	if !fault.IsNotFound(err) {
		t.Fatalf("kind = %v, want not found", fault.KindOf(err))
	}
	if !strings.Contains(err.Error(), "no llm models loaded") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestGenerateUnsupportedOp(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	ad := newFakeAdapter()
	ad.ops = []types.Op{types.OpEmbed} // llm-typed model without generate
	e.RegisterAdapter(ad)
	path := writeModelFile(t, dir, "tiny.gguf", 64)
	if _, err := e.LoadModel(context.Background(), path, types.LoadOptions{}); err != nil {
		t.Fatal(err)
	}
	_, err := e.Generate(context.Background(), "", "hi", types.GenerateOptions{}, nil)
	if !fault.IsUnsupported(err) {
		t.Fatalf("kind = %v, want unsupported", fault.KindOf(err))
	}
	if !strings.Contains(err.Error(), "model does not support generate") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestGenerateExplicitUnknownID(t *testing.T) {
	e, _ := newTestEngine(t, 1<<20)
	_, err := e.Generate(context.Background(), "nope-123", "hi", types.GenerateOptions{}, nil)
	if !fault.IsNotFound(err) {
		t.Fatalf("kind = %v, want not found", fault.KindOf(err))
	}
}

func TestGenerateStopSequence(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	ad := newFakeAdapter("alpha", "STOP", "omega")
	e.RegisterAdapter(ad)
	path := writeModelFile(t, dir, "tiny.gguf", 64)
	if _, err := e.LoadModel(context.Background(), path, types.LoadOptions{}); err != nil {
		t.Fatal(err)
	}
	out, err := e.Generate(context.Background(), "", "hi", types.GenerateOptions{Stop: []string{"STOP"}}, nil)
	if err != nil {
		t.Fatalf("stop sequence must end generation cleanly, got %v", err)
	}
	if out != "alphaSTOP" {
		t.Fatalf("output = %q, want generation halted at stop", out)
	}
}

func TestGenerateEmptyPrompt(t *testing.T) {
	e, _ := newTestEngine(t, 1<<20)
	_, err := e.Generate(context.Background(), "", "   ", types.GenerateOptions{}, nil)
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Fatalf("kind = %v, want invalid input", fault.KindOf(err))
	}
}

func TestEmbedFirstMatch(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	ad := newFakeAdapter()
	ad.embed = []float32{0.1, 0.2, 0.3}
	e.RegisterAdapter(ad)
	// "embed" in the filename classifies the model as an embedding model.
	path := writeModelFile(t, dir, "bge-embed.gguf", 64)
	if _, err := e.LoadModel(context.Background(), path, types.LoadOptions{}); err != nil {
		t.Fatal(err)
	}
	vec, err := e.Embed(context.Background(), "", "quick brown fox")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("embedding length = %d, want 3", len(vec))
	}
	// The llm-typed dispatch must not see the embedding model.
	if _, err := e.Generate(context.Background(), "", "hi", types.GenerateOptions{}, nil); !fault.IsNotFound(err) {
		t.Fatalf("generate against embedding-only pool: kind = %v, want not found", fault.KindOf(err))
	}
}

func TestLoadModelNoAdapter(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	path := writeModelFile(t, dir, "tiny.gguf", 64)
	_, err := e.LoadModel(context.Background(), path, types.LoadOptions{})
	if !fault.IsUnsupported(err) {
		t.Fatalf("kind = %v, want unsupported", fault.KindOf(err))
	}
}

func TestLoadModelOversizedUndone(t *testing.T) {
	e, dir := newTestEngine(t, 32) // capacity below the file size
	ad := newFakeAdapter("x")
	e.RegisterAdapter(ad)
	path := writeModelFile(t, dir, "big.gguf", 64)
	_, err := e.LoadModel(context.Background(), path, types.LoadOptions{})
	if !fault.IsResourceExhaustion(err) {
		t.Fatalf("kind = %v, want resource exhaustion", fault.KindOf(err))
	}
	if got := len(e.LoadedModels()); got != 0 {
		t.Fatalf("registry still tracks %d models after failed admission", got)
	}
}

func TestUnloadModel(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	ad := newFakeAdapter("x")
	e.RegisterAdapter(ad)
	path := writeModelFile(t, dir, "tiny.gguf", 64)
	m, err := e.LoadModel(context.Background(), path, types.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.UnloadModel(context.Background(), m.ID); err != nil {
		t.Fatalf("UnloadModel: %v", err)
	}
	if n := ad.unloadCount(m.ID); n != 1 {
		t.Fatalf("adapter unloaded %d times, want 1", n)
	}
	if got := len(e.LoadedModels()); got != 0 {
		t.Fatalf("%d models still tracked after unload", got)
	}
	if st := e.Cache().Stats(); st.Entries != 0 || st.SizeBytes != 0 {
		t.Fatalf("cache not emptied: %+v", st)
	}
	// Unknown ids are a no-op.
	if err := e.UnloadModel(context.Background(), "ghost"); err != nil {
		t.Fatalf("unload unknown id: %v", err)
	}
}

func TestStatusAndEvents(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	ad := newFakeAdapter("x")
	e.RegisterAdapter(ad)
	path := writeModelFile(t, dir, "tiny.gguf", 64)
	m, err := e.LoadModel(context.Background(), path, types.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	st := e.Status()
	if len(st.Loaded) != 1 || st.Loaded[0].ID != m.ID {
		t.Fatalf("status loaded = %+v", st.Loaded)
	}
	if st.MemoryBytes != 64 {
		t.Fatalf("memory bytes = %d, want 64", st.MemoryBytes)
	}
	names := make([]string, 0, 2)
	for _, ev := range e.Events() {
		names = append(names, ev.Name)
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "load_start") || !strings.Contains(joined, "load_ready") {
		t.Fatalf("lifecycle events missing: %v", names)
	}
}

func TestInferStreamsNDJSON(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	ad := newFakeAdapter("foo", "bar")
	e.RegisterAdapter(ad)
	path := writeModelFile(t, dir, "tiny.gguf", 64)
	if _, err := e.LoadModel(context.Background(), path, types.LoadOptions{}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	err := e.Infer(context.Background(), types.GenerateRequest{Prompt: "hi", Stream: true}, &buf, nil)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	var lines []map[string]any
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad NDJSON line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 2 tokens + final", len(lines))
	}
	if lines[0]["token"] != "foo" || lines[1]["token"] != "bar" {
		t.Fatalf("token lines = %v", lines[:2])
	}
	last := lines[2]
	if last["done"] != true || last["content"] != "foobar" {
		t.Fatalf("final line = %v", last)
	}
}

func TestInferNonStreaming(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	ad := newFakeAdapter("a", "b")
	e.RegisterAdapter(ad)
	path := writeModelFile(t, dir, "tiny.gguf", 64)
	if _, err := e.LoadModel(context.Background(), path, types.LoadOptions{}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := e.Infer(context.Background(), types.GenerateRequest{Prompt: "hi"}, &buf, nil); err != nil {
		t.Fatal(err)
	}
	out := strings.TrimSpace(buf.String())
	if strings.Count(out, "\n") != 0 {
		t.Fatalf("non-streaming infer wrote multiple lines: %q", out)
	}
	var last map[string]any
	if err := json.Unmarshal([]byte(out), &last); err != nil {
		t.Fatal(err)
	}
	if last["content"] != "ab" {
		t.Fatalf("content = %v", last["content"])
	}
}

func TestChatDispatch(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	ad := newFakeAdapter()
	e.RegisterAdapter(ad)
	path := writeModelFile(t, dir, "tiny.gguf", 64)
	if _, err := e.LoadModel(context.Background(), path, types.LoadOptions{}); err != nil {
		t.Fatal(err)
	}
	out, err := e.Chat(context.Background(), "", []types.ChatMessage{{Role: "user", Content: "ping"}}, types.GenerateOptions{}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "re: ping" {
		t.Fatalf("chat output = %q", out)
	}
	if _, err := e.Chat(context.Background(), "", nil, types.GenerateOptions{}, nil); fault.KindOf(err) != fault.KindInvalidInput {
		t.Fatalf("empty messages: kind = %v", fault.KindOf(err))
	}
}
