package nn_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradlayers/internal/blob"
	"github.com/born-ml/gradlayers/internal/gradcheck"
	"github.com/born-ml/gradlayers/internal/nn"
)

// Step and threshold of the finite-difference checks.
const (
	checkStep      = 1e-2
	checkThreshold = 1e-3
)

func newChecker() *gradcheck.Checker {
	return gradcheck.New(checkStep, checkThreshold)
}

// gaussianBlob returns a blob filled from N(0, std) with a fixed seed.
func gaussianBlob(t *testing.T, shape blob.Shape, std float32, seed int64) *blob.Blob {
	t.Helper()
	b := blob.New(shape)
	require.NoError(t, nn.Fill(b, nn.FillerParameter{Type: "gaussian", Std: std}, nn.NewRNG(seed)))
	return b
}

func mustBlob(t *testing.T, data []float32, shape blob.Shape) *blob.Blob {
	t.Helper()
	b, err := blob.FromSlice(data, shape)
	require.NoError(t, err)
	return b
}

func blobs(n int) []*blob.Blob {
	out := make([]*blob.Blob, n)
	for i := range out {
		out[i] = blob.New(nil)
	}
	return out
}

func fillDiff(b *blob.Blob, v float32) {
	for i := range b.Diff() {
		b.Diff()[i] = v
	}
}
