// Package gradcheck verifies analytic layer gradients against central
// finite differences.
//
// The checker treats a scalar objective of the layer's top blobs:
//   - topID >= 0: 2 * top[topID].Data()[topDataID]
//   - topID <  0: 0.5 * sum of squares of every top value
//
// It computes the analytic gradient of that objective with one Backward
// pass, then estimates the gradient of every parameter and checked bottom
// value numerically with gonum's fd.Derivative (central formula).
package gradcheck

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"

	"github.com/born-ml/gradlayers/internal/blob"
	"github.com/born-ml/gradlayers/internal/nn"
)

// lossWeight scales the single-element objective.
const lossWeight = 2

// Checker holds finite-difference settings.
type Checker struct {
	// Step is the finite-difference step h.
	Step float64

	// Threshold is the allowed difference relative to
	// max(|analytic|, |numeric|, 1).
	Threshold float64

	// Values within KinkRange of ±Kink are not checked, so non-smooth
	// points (e.g. ReLU at 0) do not fail. A negative KinkRange checks everything.
	Kink      float64
	KinkRange float64

	// Seed reseeds the layer RNG before every forward pass.
	Seed int64
}

// New returns a Checker with the given step and threshold and no kink.
//
// Example:
//
//	checker := gradcheck.New(1e-2, 1e-3)
//	if err := checker.CheckExhaustive(layer, bottom, top, -1); err != nil {
//	    t.Fatal(err)
//	}
func New(step, threshold float64) *Checker {
	return &Checker{
		Step:      step,
		Threshold: threshold,
		KinkRange: -1,
		Seed:      nn.DefaultSeed,
	}
}

// Mismatch describes one value whose gradients disagree.
type Mismatch struct {
	Blob     int // parameters first, then checked bottoms
	Name     string
	Index    int
	Analytic float64
	Numeric  float64
	TopID    int
	TopIndex int
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("gradient mismatch: %s[%d] (blob %d) for top %d[%d]: analytic %g, numeric %g",
		m.Name, m.Index, m.Blob, m.TopID, m.TopIndex, m.Analytic, m.Numeric)
}

// CheckExhaustive sets the layer up and checks the gradient of every top
// element. checkBottom selects one bottom to check; a negative value checks all.
// Parameters are always checked.
func (c *Checker) CheckExhaustive(layer nn.Layer, bottom, top []*blob.Blob, checkBottom int) error {
	if err := layer.SetUp(bottom, top); err != nil {
		return fmt.Errorf("gradcheck: setup: %w", err)
	}
	if len(top) == 0 {
		return errors.New("gradcheck: exhaustive mode requires at least one top blob")
	}
	var errs []error
	for i, t := range top {
		for j := 0; j < t.Count(); j++ {
			if err := c.CheckSingle(layer, bottom, top, checkBottom, i, j); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

type checked struct {
	name string
	blob *blob.Blob
}

// CheckSingle checks the gradient of one objective (see the package
// documentation) with respect to every parameter and checked bottom value.
// The layer must already be set up.
func (c *Checker) CheckSingle(layer nn.Layer, bottom, top []*blob.Blob, checkBottom, topID, topDataID int) error {
	if checkBottom >= len(bottom) {
		return fmt.Errorf("gradcheck: check bottom %d out of range (%d bottoms)", checkBottom, len(bottom))
	}
	var blobs []checked
	for _, p := range layer.Params() {
		p.ZeroGrad()
		blobs = append(blobs, checked{name: p.Name(), blob: p.Blob()})
	}
	propagateDown := make([]bool, len(bottom))
	for i, b := range bottom {
		if checkBottom < 0 || i == checkBottom {
			propagateDown[i] = true
			blobs = append(blobs, checked{name: fmt.Sprintf("bottom%d", i), blob: b})
		}
	}

	// Analytic gradient.
	nn.SetRandomSeed(c.Seed)
	if err := layer.Forward(bottom, top); err != nil {
		return fmt.Errorf("gradcheck: forward: %w", err)
	}
	setObjectiveGradient(top, topID, topDataID)
	if err := layer.Backward(top, propagateDown, bottom); err != nil {
		return fmt.Errorf("gradcheck: backward: %w", err)
	}
	analytic := make([][]float32, len(blobs))
	for i, b := range blobs {
		analytic[i] = append([]float32(nil), b.blob.Diff()...)
	}

	// Numerical gradient.
	var errs []error
	settings := &fd.Settings{Formula: fd.Central, Step: c.Step}
	for i, b := range blobs {
		data := b.blob.Data()
		for j := range data {
			orig := data[j]
			var ferr error
			objective := func(v float64) float64 {
				data[j] = float32(v)
				nn.SetRandomSeed(c.Seed)
				if err := layer.Forward(bottom, top); err != nil && ferr == nil {
					ferr = err
				}
				return objectiveValue(top, topID, topDataID)
			}
			numeric := fd.Derivative(objective, float64(orig), settings)
			data[j] = orig
			if ferr != nil {
				return fmt.Errorf("gradcheck: forward: %w", ferr)
			}
			if !c.shouldCheck(float64(orig)) {
				continue
			}
			a := float64(analytic[i][j])
			scale := math.Max(math.Max(math.Abs(a), math.Abs(numeric)), 1)
			if math.Abs(a-numeric) > c.Threshold*scale {
				errs = append(errs, &Mismatch{
					Blob: i, Name: b.name, Index: j,
					Analytic: a, Numeric: numeric,
					TopID: topID, TopIndex: topDataID,
				})
			}
		}
	}
	return errors.Join(errs...)
}

// shouldCheck reports whether feature is far enough from the kink to be checked.
func (c *Checker) shouldCheck(feature float64) bool {
	if c.KinkRange < 0 {
		return true
	}
	f := math.Abs(feature)
	return f < c.Kink-c.KinkRange || f > c.Kink+c.KinkRange
}

// objectiveValue evaluates the scalar objective on the current top data.
func objectiveValue(top []*blob.Blob, topID, topDataID int) float64 {
	if topID >= 0 {
		return lossWeight * float64(top[topID].Data()[topDataID])
	}
	var loss float64
	for _, t := range top {
		for _, v := range t.Data() {
			loss += float64(v) * float64(v)
		}
	}
	return loss / 2
}

// setObjectiveGradient writes the gradient of the objective into the top diffs.
func setObjectiveGradient(top []*blob.Blob, topID, topDataID int) {
	for i, t := range top {
		diff := t.Diff()
		if topID < 0 {
			copy(diff, t.Data())
			continue
		}
		clear(diff)
		if i == topID {
			diff[topDataID] = lossWeight
		}
	}
}
