// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"log/slog"

	"github.com/born-ml/gradlayers/internal/nn"
)

// Layer is the lifecycle contract implemented by every layer.
type Layer = nn.Layer

// LocalUpdater is implemented by layers that update some of their own
// parameters outside the global optimizer.
type LocalUpdater = nn.LocalUpdater

// Factory builds a layer from its configuration.
type Factory = nn.Factory

// Errors wrapped by layer setup and passes. Test them with errors.Is.
var (
	ErrConfig         = nn.ErrConfig
	ErrShape          = nn.ErrShape
	ErrBottomGradient = nn.ErrBottomGradient
)

// SetLogger sets the logger used by all layers. A nil logger restores
// slog.Default.
func SetLogger(l *slog.Logger) {
	nn.SetLogger(l)
}

// New builds a layer of param.Type after applying configuration defaults.
//
// Example:
//
//	layer, err := nn.New(nn.LayerParameter{Name: "s", Type: nn.ScalarScaleType})
func New(param LayerParameter) (Layer, error) {
	return nn.New(param)
}

// Register adds a layer type to the registry. It panics if typ is already registered.
func Register(typ string, factory Factory) {
	nn.Register(typ, factory)
}

// Types returns the registered layer types in sorted order.
func Types() []string {
	return nn.Types()
}
