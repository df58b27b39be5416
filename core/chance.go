package core

import "math/rand/v2"

// TrueWithChance returns true with the given chance in percent. Values
// outside [0, 100] are clamped.
func TrueWithChance(rng *rand.Rand, chance int) bool {
	if chance > 100 {
		chance = 100
	} else if chance < 0 {
		chance = 0
	}
	return rng.IntN(100)+1 <= chance // 1..100, never 0
}
