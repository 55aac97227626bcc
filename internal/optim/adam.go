package optim

import (
	"github.com/chewxy/math32"

	"github.com/born-ml/gradlayers/internal/nn"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule for each updatable parameter:
//
//	g     = diff + weight_decay * decay_mult * data
//	m_t   = beta1 * m_{t-1} + (1-beta1) * g
//	v_t   = beta2 * v_{t-1} + (1-beta2) * g²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	data  = data - lr * lr_mult * m_hat / (sqrt(v_hat) + eps)
//
// Local and frozen parameters are skipped and keep their moments.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
//
// Example:
//
//	solver := optim.NewAdam(layers, optim.AdamConfig{
//	    LR:    0.001,
//	    Betas: [2]float32{0.9, 0.999},
//	})
type Adam struct {
	layers      []nn.Layer
	params      []*nn.Param
	lr          float32
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
	t           int         // Timestep for bias correction
	m           [][]float32 // First moment estimates
	v           [][]float32 // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR          float32    // Learning rate (default: 0.001)
	Betas       [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps         float32    // Term for numerical stability (default: 1e-8)
	WeightDecay float32    // L2 penalty (default: 0.0)
}

// NewAdam creates a new Adam optimizer over the parameters of layers.
//
// Default hyperparameters:
//   - LR: 0.001
//   - Beta1: 0.9
//   - Beta2: 0.999
//   - Eps: 1e-8
func NewAdam(layers []nn.Layer, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	ps := params(layers)
	a := &Adam{
		layers:      layers,
		params:      ps,
		lr:          config.LR,
		beta1:       config.Betas[0],
		beta2:       config.Betas[1],
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		m:           make([][]float32, len(ps)),
		v:           make([][]float32, len(ps)),
	}
	for i, p := range ps {
		a.m[i] = make([]float32, len(p.Data()))
		a.v[i] = make([]float32, len(p.Data()))
	}
	return a
}

// Step performs a single optimization step.
func (a *Adam) Step() error {
	if err := localUpdate(a.layers); err != nil {
		return err
	}
	a.t++
	biasCorrection1 := 1 - math32.Pow(a.beta1, float32(a.t))
	biasCorrection2 := 1 - math32.Pow(a.beta2, float32(a.t))

	for i, p := range a.params {
		if !updatable(p) {
			continue
		}
		data, diff := p.Data(), p.Diff()
		m, v := a.m[i], a.v[i]
		lr := a.lr * p.LrMult()
		decay := a.weightDecay * p.DecayMult()
		for j := range data {
			g := diff[j] + decay*data[j]
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			mHat := m[j] / biasCorrection1
			vHat := v[j] / biasCorrection2
			data[j] -= lr * mHat / (math32.Sqrt(vHat) + a.eps)
		}
	}
	a.ZeroGrad()
	return nil
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam) ZeroGrad() {
	zeroGrad(a.params)
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the number of steps taken.
func (a *Adam) GetTimestep() int {
	return a.t
}
