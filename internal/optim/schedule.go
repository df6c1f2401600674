package optim

import "math"

// Schedule maps the optimizer step counter to a learning rate.
type Schedule func(step int) float32

// Constant returns a schedule that always yields lr.
func Constant(lr float32) Schedule {
	return func(int) float32 { return lr }
}

// WarmupCosine ramps linearly from minLR to maxLR over warmup steps, then
// follows a cosine curve back down to minLR at decay steps and stays there.
func WarmupCosine(minLR, maxLR float32, warmup, decay int) Schedule {
	return func(step int) float32 {
		if step < warmup {
			return minLR + (maxLR-minLR)*float32(step)/float32(warmup)
		}
		if step >= decay || decay <= warmup {
			return minLR
		}
		progress := float64(step-warmup) / float64(decay-warmup)
		coeff := 0.5 * (1 + math.Cos(math.Pi*progress))
		return minLR + float32(coeff)*(maxLR-minLR)
	}
}
