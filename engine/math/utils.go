package math

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/rand"
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Random is a seeded float32 source for scattering test scenes.
type Random struct {
	rng *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// InRange returns a float in [min, max).
func (r *Random) InRange(min, max float32) float32 {
	return min + r.rng.Float32()*(max-min)
}

func (r *Random) Vec3InRange(min, max float32) Vec3 {
	return Vec3{r.InRange(min, max), r.InRange(min, max), r.InRange(min, max)}
}
