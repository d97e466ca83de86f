package motion

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Rand is the uniform randomness source a seed is drawn from
type Rand interface {
	UniformReal(min, max float64) float64
}

// Seed fixes the motion character of one animation request
type Seed struct {
	Phases      [3]float64
	Multipliers [3]float64
}

// NewSeed draws phases in [0, 2π) and frequency multipliers in [0.75, 1.5)
func NewSeed(r Rand) Seed {
	var s Seed
	for k := range s.Phases {
		s.Phases[k] = r.UniformReal(0, 2*math.Pi)
		s.Multipliers[k] = r.UniformReal(0.75, 1.5)
	}
	return s
}

// Frequencies returns three distinct integer angular frequencies.
func (s Seed) Frequencies() [3]float64 {
	var out [3]float64
	used := make(map[int]bool, len(out))
	for k := range out {
		f := max(1, int(math.Round(baseFrequencies[k]*s.Multipliers[k])))
		for used[f] {
			f++
		}
		used[f] = true
		out[k] = float64(f)
	}
	return out
}

type globalRand struct{}

// NewRand returns a Rand backed by the process-wide math/rand/v2 source
func NewRand() Rand {
	return globalRand{}
}

func (globalRand) UniformReal(min, max float64) float64 {
	return min + rand.Float64()*(max-min)
}

type seededRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeededRand returns a reproducible Rand, safe for concurrent use
func NewSeededRand(seed uint64) Rand {
	return &seededRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededRand) UniformReal(min, max float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.r.Float64()*(max-min)
}
