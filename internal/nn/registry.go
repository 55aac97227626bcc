package nn

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a layer from its configuration.
type Factory func(param LayerParameter) Layer

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a layer type available to New.
// Panics if the type is registered twice.
func Register(typ string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[typ]; dup {
		panic(fmt.Sprintf("nn: layer type %q registered twice", typ))
	}
	registry[typ] = factory
}

// New creates a layer of param.Type. Defaults are applied to param first.
func New(param LayerParameter) (Layer, error) {
	registryMu.RLock()
	factory, ok := registry[param.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown layer type %q (known: %v): %w", param.Type, Types(), ErrConfig)
	}
	param.SetDefaults()
	return factory(param), nil
}

// Types returns the registered layer types in sorted order.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for typ := range registry {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

func init() {
	Register(ConvolutionType, func(p LayerParameter) Layer { return NewConvolution(p) })
	Register(ScalarScaleType, func(p LayerParameter) Layer { return NewScalarScale(p) })
	Register(DLSTMUnitType, func(p LayerParameter) Layer { return NewDLSTMUnit(p) })
	Register(DLSTMType, func(p LayerParameter) Layer { return NewDLSTM(p) })
	Register(LocalLSTMType, func(p LayerParameter) Layer { return NewLocalLSTM(p) })
}
