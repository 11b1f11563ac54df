package expr

import "math"

// Random is a seedable Park-Miller generator. Each assembler session owns
// one so that .rndseed makes rnd() reproducible.
type Random struct {
	seed int64
}

func NewRandom(seed int64) *Random {
	r := &Random{}
	r.Seed(seed)
	return r
}

func (r *Random) Seed(seed int64) {
	r.seed = seed % 2147483647
	if r.seed <= 0 {
		r.seed += 2147483646
	}
}

func (r *Random) next() int64 {
	r.seed = r.seed * 16807 % 2147483647
	return r.seed
}

// Float returns a number in [0, 1).
func (r *Random) Float() float64 {
	return float64(r.next()-1) / 2147483646
}

// Integer returns a number in [from, to).
func (r *Random) Integer(from, to int64) int64 {
	return int64(math.Floor(float64(from) + r.Float()*float64(to-from)))
}
