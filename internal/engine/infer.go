package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"idgaf/internal/fault"
	"idgaf/internal/stream"
	"idgaf/pkg/types"
)

// Infer runs a generate request and streams NDJSON to w: one
// {"token":...} line per token, then a final {"done":true,...} line with
// the accumulated content and usage. Non-streaming requests emit only the
// final line. Each token is subject to the engine's per-token timeout;
// tokens slower than that abort the stream.
func (e *Engine) Infer(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fault.New(fault.KindInvalidInput, "prompt is required").WithOp(string(types.OpGenerate))
	}
	opts := types.GenerateOptions{
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
		TopK:        req.TopK,
		Stop:        req.Stop,
		Seed:        req.Seed,
	}

	if !req.Stream {
		start := time.Now()
		content, err := e.Generate(ctx, req.Model, req.Prompt, opts, nil)
		if err != nil {
			return err
		}
		return writeFinalLine(w, flush, content, time.Since(start))
	}

	ctrl := e.GenerateStream(ctx, req.Model, req.Prompt, opts)
	src := stream.WithStepTimeout[string](ctrl, e.tokenTimeout)

	var b strings.Builder
	start := time.Now()
	for {
		tok, err := src.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			ctrl.Cancel()
			return err
		}
		b.WriteString(tok)
		if _, err := w.Write(tokenLineJSON(tok)); err != nil {
			ctrl.Cancel()
			return err
		}
		if flush != nil {
			flush()
		}
	}
	return writeFinalLine(w, flush, b.String(), time.Since(start))
}

func writeFinalLine(w io.Writer, flush func(), content string, elapsed time.Duration) error {
	end := map[string]any{
		"done":    true,
		"content": content,
		"usage": map[string]any{
			"duration_ms": elapsed.Milliseconds(),
		},
	}
	jb, _ := json.Marshal(end)
	if _, err := w.Write(append(jb, '\n')); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}

// tokenLineJSON formats one token NDJSON line.
func tokenLineJSON(tok string) []byte {
	type tokenMsg struct {
		Token string `json:"token"`
	}
	b, _ := json.Marshal(tokenMsg{Token: tok})
	return append(b, '\n')
}
