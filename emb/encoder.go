// Package emb runs a sentence-transformer ONNX model to turn text into
// normalised embedding vectors.
package emb

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// Config points the encoder at the runtime library, model and tokenizer.
type Config struct {
	OrtDLL        string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
}

const defaultMaxSeqLen = 512

var (
	envMu   sync.Mutex
	envRefs int
)

// Encoder wraps an ORT session and a HuggingFace tokenizer.
type Encoder struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	tk         *tokenizer.Tokenizer
	inputNames []string
	maxSeqLen  int
}

// Init loads the tokenizer and model. The ORT environment is shared between
// encoders and torn down when the last one closes.
func (e *Encoder) Init(cfg Config) error {
	if cfg.ModelPath == "" {
		return errors.New("model path is required")
	}
	if cfg.TokenizerPath == "" {
		return errors.New("tokenizer path is required")
	}
	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}
	if err := acquireEnvironment(cfg.OrtDLL); err != nil {
		return err
	}
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		releaseEnvironment()
		return fmt.Errorf("inspect model: %w", err)
	}
	inputNames := make([]string, 0, len(inputs))
	for _, in := range inputs {
		inputNames = append(inputNames, in.Name)
	}
	if len(outputs) == 0 {
		releaseEnvironment()
		return errors.New("model has no outputs")
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{outputs[0].Name}, nil)
	if err != nil {
		releaseEnvironment()
		return fmt.Errorf("create session: %w", err)
	}
	e.session = session
	e.tk = tk
	e.inputNames = inputNames
	e.maxSeqLen = cfg.MaxSeqLen
	if e.maxSeqLen <= 0 {
		e.maxSeqLen = defaultMaxSeqLen
	}
	return nil
}

// Close releases the session.
func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return
	}
	_ = e.session.Destroy()
	e.session = nil
	releaseEnvironment()
}

// Encode embeds text and returns an L2-normalised vector.
func (e *Encoder) Encode(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("encoder is not initialized")
	}
	enc, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	ids := truncate(enc.Ids, e.maxSeqLen)
	mask := truncate(enc.AttentionMask, e.maxSeqLen)
	types := truncate(enc.TypeIds, e.maxSeqLen)
	if len(ids) == 0 {
		return nil, errors.New("tokenizer produced no tokens")
	}
	if len(types) != len(ids) {
		types = make([]int, len(ids))
	}
	if len(mask) != len(ids) {
		mask = make([]int, len(ids))
		for i := range mask {
			mask[i] = 1
		}
	}

	shape := ort.NewShape(1, int64(len(ids)))
	inputs := make([]ort.Value, 0, len(e.inputNames))
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()
	for _, name := range e.inputNames {
		var data []int64
		switch {
		case strings.Contains(name, "mask"):
			data = toInt64(mask)
		case strings.Contains(name, "type"):
			data = toInt64(types)
		default:
			data = toInt64(ids)
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("run model: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
	}()
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("unexpected output tensor type")
	}
	dims := out.GetShape()
	data := out.GetData()
	var vec []float32
	switch len(dims) {
	case 3:
		vec = meanPool(data, int(dims[1]), int(dims[2]), mask)
	case 2:
		vec = append([]float32(nil), data[:dims[1]]...)
	default:
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	l2Normalize(vec)
	return vec, nil
}

func acquireEnvironment(dll string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		if dll != "" {
			ort.SetSharedLibraryPath(dll)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("init onnxruntime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return
	}
	envRefs--
	if envRefs == 0 {
		_ = ort.DestroyEnvironment()
	}
}

// meanPool averages token embeddings of shape [seq, hidden] over positions
// whose attention mask is set.
func meanPool(data []float32, seq, hidden int, mask []int) []float32 {
	out := make([]float32, hidden)
	var count float32
	for i := 0; i < seq; i++ {
		if i < len(mask) && mask[i] == 0 {
			continue
		}
		row := data[i*hidden : (i+1)*hidden]
		for j, v := range row {
			out[j] += v
		}
		count++
	}
	if count == 0 {
		return out
	}
	for j := range out {
		out[j] /= count
	}
	return out
}

func l2Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

func truncate(v []int, n int) []int {
	if len(v) > n {
		return v[:n]
	}
	return v
}

func toInt64(v []int) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}
