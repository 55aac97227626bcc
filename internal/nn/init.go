package nn

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/seehuhn/mt19937"

	"github.com/born-ml/gradlayers/internal/blob"
)

// DefaultSeed is the seed of the package random source until SetRandomSeed is called.
const DefaultSeed = 1701

var (
	rngMu sync.Mutex
	rng   = NewRNG(DefaultSeed)
)

// NewRNG returns a Mersenne Twister backed generator.
func NewRNG(seed int64) *rand.Rand {
	src := mt19937.New()
	src.Seed(seed)
	return rand.New(src)
}

// SetRandomSeed reseeds the generator used by layers to fill new parameters.
func SetRandomSeed(seed int64) {
	rngMu.Lock()
	defer rngMu.Unlock()
	rng = NewRNG(seed)
}

// fillParam initializes p with the package generator.
func fillParam(p *Param, filler FillerParameter) error {
	rngMu.Lock()
	defer rngMu.Unlock()
	return Fill(p.Blob(), filler, rng)
}

// Fill initializes b.Data() according to filler.
//
// Fan-in is count/shape[0] and fan-out is count/shape[1], matching weight
// layouts [out, in, ...]:
//   - xavier: U(-sqrt(3/n), sqrt(3/n))
//   - msra:   N(0, sqrt(2/n))
//
// where n is fan_in, fan_out or their average per VarianceNorm.
func Fill(b *blob.Blob, filler FillerParameter, r *rand.Rand) error {
	data := b.Data()
	switch filler.Type {
	case "", "constant":
		for i := range data {
			data[i] = filler.Value
		}
	case "uniform":
		if filler.Max < filler.Min {
			return fmt.Errorf("uniform filler: max %v < min %v: %w", filler.Max, filler.Min, ErrConfig)
		}
		span := float64(filler.Max - filler.Min)
		for i := range data {
			data[i] = filler.Min + float32(r.Float64()*span)
		}
	case "gaussian":
		for i := range data {
			data[i] = filler.Mean + float32(r.NormFloat64())*filler.Std
		}
	case "xavier":
		n, err := fanNorm(b, filler.VarianceNorm)
		if err != nil {
			return err
		}
		scale := math.Sqrt(3 / n)
		for i := range data {
			data[i] = float32((r.Float64()*2 - 1) * scale)
		}
	case "msra":
		n, err := fanNorm(b, filler.VarianceNorm)
		if err != nil {
			return err
		}
		std := math.Sqrt(2 / n)
		for i := range data {
			data[i] = float32(r.NormFloat64() * std)
		}
	default:
		return fmt.Errorf("unknown filler type %q: %w", filler.Type, ErrConfig)
	}
	return nil
}

func fanNorm(b *blob.Blob, norm string) (float64, error) {
	count := b.Count()
	if count == 0 {
		return 0, fmt.Errorf("filler: empty blob: %w", ErrShape)
	}
	fanIn := float64(count) / float64(b.Dim(0))
	fanOut := float64(count)
	if b.NumAxes() > 1 {
		fanOut = float64(count) / float64(b.Dim(1))
	}
	switch norm {
	case "", "fan_in":
		return fanIn, nil
	case "fan_out":
		return fanOut, nil
	case "average":
		return (fanIn + fanOut) / 2, nil
	default:
		return 0, fmt.Errorf("unknown variance_norm %q: %w", norm, ErrConfig)
	}
}
