package nn

// GANPhase is the position of a layer in the alternating adversarial
// training schedule.
//
// A layer starts in phase 0 and advances once per Backward call:
//
//	0 -> 1 -> 2 -> 3 -> 1 -> 2 -> 3 -> ...
//
// Phase 3 is the generator step; phases 1 and 2 are discriminator steps.
type GANPhase int

// GeneratorPhase is the phase in which generator layers are trained.
const GeneratorPhase GANPhase = 3

// Next returns the phase that follows p.
func (p GANPhase) Next() GANPhase {
	if p == GeneratorPhase {
		return 1
	}
	return p + 1
}

// UpdateWeight reports whether a layer may change its parameters in phase p.
//
//   - weightFixed: never.
//   - genMode: only in the generator phase.
//   - disMode: in every phase except the generator phase.
func UpdateWeight(p GANPhase, weightFixed, genMode, disMode bool) bool {
	update := !weightFixed
	if genMode && p != GeneratorPhase {
		update = false
	}
	if disMode && p == GeneratorPhase {
		update = false
	}
	return update
}
