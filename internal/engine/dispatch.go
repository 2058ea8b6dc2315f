package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"idgaf/internal/fault"
	"idgaf/internal/stream"
	"idgaf/pkg/types"
)

// errStopSequence aborts generation from inside the token callback when a
// stop sequence matches; it is a success condition, not a failure.
var errStopSequence = errors.New("stop sequence matched")

// stopWindow is how many recent tokens are scanned for stop sequences.
const stopWindow = 16

// pick selects the model for an operation: the explicit id when given,
// otherwise the first loaded model of the requested modality. Selection is
// positional, not scored.
func (e *Engine) pick(modelID string, typ types.ModelType, op types.Op) (*types.LoadedModel, error) {
	var m *types.LoadedModel
	if modelID != "" {
		found, ok := e.reg.Loaded(modelID)
		if !ok {
			return nil, fault.New(fault.KindNotFound, "model not loaded").WithModel(modelID).WithOp(string(op))
		}
		m = found
	} else {
		for _, cand := range e.reg.AllLoaded() {
			if cand.Info.Type == typ {
				m = cand
				break
			}
		}
		if m == nil {
			return nil, fault.New(fault.KindNotFound, "no %s models loaded", typ).WithOp(string(op))
		}
	}
	if !m.Supports(op) {
		return nil, fault.New(fault.KindUnsupported, "model does not support %s", op).WithModel(m.ID).WithOp(string(op))
	}
	return m, nil
}

// observe records duration metrics for a finished operation. tokens < 0
// means the operation produces no tokens.
func (e *Engine) observe(op types.Op, modelID string, start time.Time, tokens int, err error) {
	elapsed := time.Since(start)
	if err != nil {
		kind := string(fault.KindOf(err))
		if kind == "" {
			kind = "unclassified"
		}
		opErrors.WithLabelValues(string(op), kind).Inc()
		e.log.Debug().Err(err).Str("op", string(op)).Str("model", modelID).Msg("operation failed")
		return
	}
	opDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
	u := metricsUpdate{inferenceTime: &elapsed}
	if tokens >= 0 && elapsed > 0 {
		tps := float64(tokens) / elapsed.Seconds()
		u.tokensPerSec = &tps
	}
	e.updateMetrics(modelID, u)
	e.log.Debug().Str("op", string(op)).Str("model", modelID).Dur("dur", elapsed).Msg("operation done")
}

// wrapStops layers engine-side stop-sequence scanning over a token
// callback, for adapters that do not handle stop sequences natively.
func wrapStops(onToken types.TokenFunc, stops []string) types.TokenFunc {
	if len(stops) == 0 {
		return onToken
	}
	tail := stream.NewTokenBuffer(stopWindow)
	return func(tok string) error {
		tail.Add(tok)
		text := tail.Text()
		for _, s := range stops {
			if s != "" && strings.HasSuffix(text, s) {
				return errStopSequence
			}
		}
		if onToken == nil {
			return nil
		}
		return onToken(tok)
	}
}

// Generate produces a completion on the first loaded LLM (or the given
// model id), streaming tokens through onToken when provided.
func (e *Engine) Generate(ctx context.Context, modelID, prompt string, opts types.GenerateOptions, onToken types.TokenFunc) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fault.New(fault.KindInvalidInput, "prompt is required").WithOp(string(types.OpGenerate))
	}
	m, err := e.pick(modelID, types.TypeLLM, types.OpGenerate)
	if err != nil {
		return "", err
	}
	if err := e.gate.Acquire(ctx); err != nil {
		return "", err
	}
	defer e.gate.Release()

	tokens := 0
	counting := func(tok string) error {
		tokens++
		if onToken == nil {
			return nil
		}
		return onToken(tok)
	}
	start := time.Now()
	out, err := m.Generate(ctx, prompt, opts, wrapStops(counting, opts.Stop))
	if err != nil && errors.Is(err, errStopSequence) {
		err = nil
	}
	if err != nil && fault.KindOf(err) == "" {
		err = fault.Wrap(fault.KindInferenceFailure, err, "generate").WithModel(m.ID)
	}
	e.observe(types.OpGenerate, m.ID, start, tokens, err)
	return out, err
}

// GenerateStream runs Generate on its own goroutine and delivers tokens
// through a stream controller. The consumer pulls via Recv; cancelling the
// consumer side stops the producer at the next token.
func (e *Engine) GenerateStream(ctx context.Context, modelID, prompt string, opts types.GenerateOptions) *stream.Controller[string] {
	ctrl := stream.NewController[string]()
	go func() {
		_, err := e.Generate(ctx, modelID, prompt, opts, func(tok string) error {
			if !ctrl.Push(tok) {
				return stream.ErrCancelled
			}
			return nil
		})
		if err != nil && !errors.Is(err, stream.ErrCancelled) {
			ctrl.Fail(err)
			return
		}
		ctrl.Close()
	}()
	return ctrl
}

// Chat runs a multi-turn conversation on the first loaded LLM.
func (e *Engine) Chat(ctx context.Context, modelID string, msgs []types.ChatMessage, opts types.GenerateOptions, onToken types.TokenFunc) (string, error) {
	if len(msgs) == 0 {
		return "", fault.New(fault.KindInvalidInput, "messages are required").WithOp(string(types.OpChat))
	}
	m, err := e.pick(modelID, types.TypeLLM, types.OpChat)
	if err != nil {
		return "", err
	}
	if err := e.gate.Acquire(ctx); err != nil {
		return "", err
	}
	defer e.gate.Release()

	tokens := 0
	counting := func(tok string) error {
		tokens++
		if onToken == nil {
			return nil
		}
		return onToken(tok)
	}
	start := time.Now()
	out, err := m.Chat(ctx, msgs, opts, wrapStops(counting, opts.Stop))
	if err != nil && errors.Is(err, errStopSequence) {
		err = nil
	}
	if err != nil && fault.KindOf(err) == "" {
		err = fault.Wrap(fault.KindInferenceFailure, err, "chat").WithModel(m.ID)
	}
	e.observe(types.OpChat, m.ID, start, tokens, err)
	return out, err
}

func validTensor(t types.Tensor, op types.Op) error {
	if len(t.Shape) == 0 || int64(len(t.Data)) != t.Elements() {
		return fault.New(fault.KindInvalidInput, "tensor data does not match shape").WithOp(string(op))
	}
	return nil
}

// Classify labels an input on the first loaded vision model.
func (e *Engine) Classify(ctx context.Context, modelID string, input types.Tensor) ([]types.Classification, error) {
	if err := validTensor(input, types.OpClassify); err != nil {
		return nil, err
	}
	m, err := e.pick(modelID, types.TypeVision, types.OpClassify)
	if err != nil {
		return nil, err
	}
	if err := e.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.gate.Release()
	start := time.Now()
	out, err := m.Classify(ctx, input)
	if err != nil && fault.KindOf(err) == "" {
		err = fault.Wrap(fault.KindInferenceFailure, err, "classify").WithModel(m.ID)
	}
	e.observe(types.OpClassify, m.ID, start, -1, err)
	return out, err
}

// Detect locates objects on the first loaded vision model.
func (e *Engine) Detect(ctx context.Context, modelID string, image types.Tensor) ([]types.Detection, error) {
	if err := validTensor(image, types.OpDetect); err != nil {
		return nil, err
	}
	m, err := e.pick(modelID, types.TypeVision, types.OpDetect)
	if err != nil {
		return nil, err
	}
	if err := e.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.gate.Release()
	start := time.Now()
	out, err := m.Detect(ctx, image)
	if err != nil && fault.KindOf(err) == "" {
		err = fault.Wrap(fault.KindInferenceFailure, err, "detect").WithModel(m.ID)
	}
	e.observe(types.OpDetect, m.ID, start, -1, err)
	return out, err
}

// Segment produces a mask on the first loaded vision model.
func (e *Engine) Segment(ctx context.Context, modelID string, image types.Tensor) (types.Tensor, error) {
	if err := validTensor(image, types.OpSegment); err != nil {
		return types.Tensor{}, err
	}
	m, err := e.pick(modelID, types.TypeVision, types.OpSegment)
	if err != nil {
		return types.Tensor{}, err
	}
	if err := e.gate.Acquire(ctx); err != nil {
		return types.Tensor{}, err
	}
	defer e.gate.Release()
	start := time.Now()
	out, err := m.Segment(ctx, image)
	if err != nil && fault.KindOf(err) == "" {
		err = fault.Wrap(fault.KindInferenceFailure, err, "segment").WithModel(m.ID)
	}
	e.observe(types.OpSegment, m.ID, start, -1, err)
	return out, err
}

// Transcribe converts audio samples to text on the first loaded audio model.
func (e *Engine) Transcribe(ctx context.Context, modelID string, audio []float32, sampleRate int) (string, error) {
	if len(audio) == 0 || sampleRate <= 0 {
		return "", fault.New(fault.KindInvalidInput, "audio samples and sample rate are required").WithOp(string(types.OpTranscribe))
	}
	m, err := e.pick(modelID, types.TypeAudio, types.OpTranscribe)
	if err != nil {
		return "", err
	}
	if err := e.gate.Acquire(ctx); err != nil {
		return "", err
	}
	defer e.gate.Release()
	start := time.Now()
	out, err := m.Transcribe(ctx, audio, sampleRate)
	if err != nil && fault.KindOf(err) == "" {
		err = fault.Wrap(fault.KindInferenceFailure, err, "transcribe").WithModel(m.ID)
	}
	e.observe(types.OpTranscribe, m.ID, start, -1, err)
	return out, err
}

// Synthesize renders speech samples on the first loaded audio model.
func (e *Engine) Synthesize(ctx context.Context, modelID, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fault.New(fault.KindInvalidInput, "text is required").WithOp(string(types.OpSynthesize))
	}
	m, err := e.pick(modelID, types.TypeAudio, types.OpSynthesize)
	if err != nil {
		return nil, err
	}
	if err := e.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.gate.Release()
	start := time.Now()
	out, err := m.Synthesize(ctx, text)
	if err != nil && fault.KindOf(err) == "" {
		err = fault.Wrap(fault.KindInferenceFailure, err, "synthesize").WithModel(m.ID)
	}
	e.observe(types.OpSynthesize, m.ID, start, -1, err)
	return out, err
}

// Embed computes an embedding vector on the first loaded embedding model.
func (e *Engine) Embed(ctx context.Context, modelID, input string) ([]float32, error) {
	if input == "" {
		return nil, fault.New(fault.KindInvalidInput, "input is required").WithOp(string(types.OpEmbed))
	}
	m, err := e.pick(modelID, types.TypeEmbedding, types.OpEmbed)
	if err != nil {
		return nil, err
	}
	if err := e.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.gate.Release()
	start := time.Now()
	out, err := m.Embed(ctx, input)
	if err != nil && fault.KindOf(err) == "" {
		err = fault.Wrap(fault.KindInferenceFailure, err, "embed").WithModel(m.ID)
	}
	e.observe(types.OpEmbed, m.ID, start, -1, err)
	return out, err
}

// Run performs raw named-tensor inference on the first loaded model that
// supports it, regardless of modality.
func (e *Engine) Run(ctx context.Context, modelID string, inputs map[string]types.Tensor) (map[string]types.Tensor, error) {
	if len(inputs) == 0 {
		return nil, fault.New(fault.KindInvalidInput, "inputs are required").WithOp(string(types.OpRun))
	}
	for _, t := range inputs {
		if err := validTensor(t, types.OpRun); err != nil {
			return nil, err
		}
	}
	var m *types.LoadedModel
	if modelID != "" {
		found, ok := e.reg.Loaded(modelID)
		if !ok {
			return nil, fault.New(fault.KindNotFound, "model not loaded").WithModel(modelID).WithOp(string(types.OpRun))
		}
		m = found
		if !m.Supports(types.OpRun) {
			return nil, fault.New(fault.KindUnsupported, "model does not support run").WithModel(m.ID).WithOp(string(types.OpRun))
		}
	} else {
		for _, cand := range e.reg.AllLoaded() {
			if cand.Supports(types.OpRun) {
				m = cand
				break
			}
		}
		if m == nil {
			return nil, fault.New(fault.KindNotFound, "no models loaded that support run").WithOp(string(types.OpRun))
		}
	}
	if err := e.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.gate.Release()
	start := time.Now()
	out, err := m.Run(ctx, inputs)
	if err != nil && fault.KindOf(err) == "" {
		err = fault.Wrap(fault.KindInferenceFailure, err, "run").WithModel(m.ID)
	}
	e.observe(types.OpRun, m.ID, start, -1, err)
	return out, err
}
