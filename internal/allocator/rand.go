package allocator

import "math/rand"

// splitMix64 advances a 64-bit state by one step using the standard
// SplitMix64 mixing function, producing a well-distributed output from
// a simple counter. It is used only to derive independent, reproducible
// per-trial seeds from the run's seed and trial index (spec.md §9) —
// no pack dependency provides a seedable deterministic RNG, and this is
// a well-known, easily-verified construction rather than a hand-rolled
// cipher.
func splitMix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// trialRNG derives trial t's random stream from runSeed deterministically:
// seed' = SplitMix64(SplitMix64(runSeed) XOR t). Two runs with the same
// (runSeed, t) always produce the same stream (P6); different trials
// within a run draw from independent streams.
func trialRNG(runSeed int64, trial int) *rand.Rand {
	mixed := splitMix64(uint64(runSeed)) ^ uint64(trial)
	seed := int64(splitMix64(mixed))
	return rand.New(rand.NewSource(seed))
}
