package nn

import (
	"fmt"

	"github.com/born-ml/gradlayers/internal/blob"
)

// Sequential chains single-input, single-output layers.
//
// Each layer's top blob becomes the next layer's bottom blob, creating a
// sequential pipeline. Backward runs the layers in reverse order.
//
// Example:
//
//	critic := nn.NewSequential(conv1, scale)
//	if err := critic.SetUp(x); err != nil { ... }
//	critic.Forward()
//	// fill critic.Output().Diff()
//	critic.Backward(true)
//
// This is equivalent to:
//
//	conv1.Forward([]*blob.Blob{x}, []*blob.Blob{h1})
//	scale.Forward([]*blob.Blob{h1}, []*blob.Blob{out})
type Sequential struct {
	layers []Layer
	blobs  []*blob.Blob // blobs[i] is the bottom of layers[i]; the last is the output
}

// NewSequential creates a new Sequential container.
func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{layers: layers}
}

// Add appends a layer to the sequence. SetUp must be called again afterwards.
func (s *Sequential) Add(layer Layer) {
	s.layers = append(s.layers, layer)
	s.blobs = nil
}

// Len returns the number of layers in the sequence.
func (s *Sequential) Len() int {
	return len(s.layers)
}

// Layer returns the layer at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential) Layer(index int) Layer {
	if index < 0 || index >= len(s.layers) {
		panic("Sequential.Layer: index out of bounds")
	}
	return s.layers[index]
}

// Layers returns all layers.
func (s *Sequential) Layers() []Layer {
	return s.layers
}

// SetUp wires input through every layer and sets each layer up.
func (s *Sequential) SetUp(input *blob.Blob) error {
	s.blobs = make([]*blob.Blob, len(s.layers)+1)
	s.blobs[0] = input
	for i, l := range s.layers {
		s.blobs[i+1] = blob.New(nil)
		if err := l.SetUp(s.blobs[i:i+1], s.blobs[i+1:i+2]); err != nil {
			return fmt.Errorf("sequential: layer %d (%s): %w", i, l.Type(), err)
		}
	}
	return nil
}

// Forward applies all layers in sequence.
func (s *Sequential) Forward() error {
	if s.blobs == nil {
		return fmt.Errorf("sequential: forward before SetUp")
	}
	for i, l := range s.layers {
		if err := l.Forward(s.blobs[i:i+1], s.blobs[i+1:i+2]); err != nil {
			return fmt.Errorf("sequential: layer %d (%s): %w", i, l.Type(), err)
		}
	}
	return nil
}

// Backward propagates Output().Diff() through all layers in reverse.
// propagateInput controls whether the input blob receives a gradient.
func (s *Sequential) Backward(propagateInput bool) error {
	if s.blobs == nil {
		return fmt.Errorf("sequential: backward before SetUp")
	}
	for i := len(s.layers) - 1; i >= 0; i-- {
		propagate := []bool{i > 0 || propagateInput}
		if err := s.layers[i].Backward(s.blobs[i+1:i+2], propagate, s.blobs[i:i+1]); err != nil {
			return fmt.Errorf("sequential: layer %d (%s): %w", i, s.layers[i].Type(), err)
		}
	}
	return nil
}

// Output returns the top blob of the last layer, or nil before SetUp.
func (s *Sequential) Output() *blob.Blob {
	if len(s.blobs) == 0 {
		return nil
	}
	return s.blobs[len(s.blobs)-1]
}

// Blobs returns the input followed by every layer's output.
func (s *Sequential) Blobs() []*blob.Blob {
	return s.blobs
}

// Params returns all trainable parameters from all layers.
func (s *Sequential) Params() []*Param {
	var params []*Param
	for _, l := range s.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// StateDict returns the parameter values keyed "<layer index>.<param name>".
func (s *Sequential) StateDict() map[string][]float32 {
	state := make(map[string][]float32)
	for i, l := range s.layers {
		for _, p := range l.Params() {
			state[fmt.Sprintf("%d.%s", i, p.Name())] = append([]float32(nil), p.Data()...)
		}
	}
	return state
}

// LoadStateDict restores parameter values saved by StateDict.
// Every parameter must be present with a matching length.
func (s *Sequential) LoadStateDict(state map[string][]float32) error {
	for i, l := range s.layers {
		for _, p := range l.Params() {
			key := fmt.Sprintf("%d.%s", i, p.Name())
			v, ok := state[key]
			if !ok {
				return fmt.Errorf("sequential: missing parameter %q", key)
			}
			if len(v) != len(p.Data()) {
				return fmt.Errorf("sequential: parameter %q has %d values, want %d", key, len(v), len(p.Data()))
			}
			copy(p.Data(), v)
		}
	}
	return nil
}
