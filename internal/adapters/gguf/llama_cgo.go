//go:build llama

package gguf

import (
	"context"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"idgaf/internal/fault"
	"idgaf/pkg/types"
)

// llamaBuilt reports whether this binary carries the real llama.cpp backend.
const llamaBuilt = true

const (
	defaultContext = 4096
	defaultThreads = 4
)

func (a *Adapter) load(ctx context.Context, path string, opts types.LoadOptions) (*types.LoadedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctxSize := opts.ContextSize
	if ctxSize <= 0 {
		ctxSize = defaultContext
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = defaultThreads
	}

	mo := []llama.ModelOption{
		llama.SetContext(ctxSize),
		llama.EnableEmbeddings,
	}
	if opts.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(opts.GPULayers))
	}
	native, err := llama.New(path, mo...)
	if err != nil {
		return nil, fault.Wrap(fault.KindLoadFailure, err, "llama load %q", path)
	}

	// llama.cpp instances are not safe for concurrent prediction; serialize
	// calls per instance.
	var callMu sync.Mutex

	m := &types.LoadedModel{ID: types.NewModelID(types.FormatGGUF), Adapter: a}

	generate := func(ctx context.Context, prompt string, gopts types.GenerateOptions, onToken types.TokenFunc) (string, error) {
		callMu.Lock()
		defer callMu.Unlock()
		native.SetTokenCallback(func(tok string) bool {
			select {
			case <-ctx.Done():
				return false
			default:
			}
			if onToken != nil {
				if err := onToken(tok); err != nil {
					return false
				}
			}
			return true
		})
		defer native.SetTokenCallback(nil)
		text, err := native.Predict(prompt, predictOptions(gopts, threads)...)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fault.Wrap(fault.KindInferenceFailure, err, "llama predict")
		}
		return text, nil
	}

	m.Generate = generate
	m.Chat = func(ctx context.Context, msgs []types.ChatMessage, gopts types.GenerateOptions, onToken types.TokenFunc) (string, error) {
		return generate(ctx, flattenChat(msgs), gopts, onToken)
	}
	m.Embed = func(ctx context.Context, input string) ([]float32, error) {
		callMu.Lock()
		defer callMu.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := native.Embeddings(input, llama.SetThreads(threads))
		if err != nil {
			return nil, fault.Wrap(fault.KindInferenceFailure, err, "llama embeddings")
		}
		return vec, nil
	}
	m.MarkSupported(types.OpGenerate, types.OpChat, types.OpEmbed)

	a.track(m.ID, func() {
		callMu.Lock()
		defer callMu.Unlock()
		native.Free()
	})
	return m, nil
}

// flattenChat renders a conversation as a plain prompt with role prefixes
// and a trailing assistant cue.
func flattenChat(msgs []types.ChatMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant: ")
	return b.String()
}

func predictOptions(gopts types.GenerateOptions, threads int) []llama.PredictOption {
	maxTokens := gopts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}
	po := []llama.PredictOption{
		llama.SetTokens(maxTokens),
		llama.SetThreads(threads),
	}
	if gopts.Temperature > 0 {
		po = append(po, llama.SetTemperature(gopts.Temperature))
	}
	if gopts.TopP > 0 {
		po = append(po, llama.SetTopP(gopts.TopP))
	}
	if gopts.TopK > 0 {
		po = append(po, llama.SetTopK(gopts.TopK))
	}
	if gopts.RepeatPenalty > 0 {
		po = append(po, llama.SetPenalty(gopts.RepeatPenalty))
	}
	if gopts.Seed != 0 {
		po = append(po, llama.SetSeed(gopts.Seed))
	}
	if len(gopts.Stop) > 0 {
		po = append(po, llama.SetStopWords(gopts.Stop...))
	}
	return po
}
