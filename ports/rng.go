package ports

import "math/rand"

// RNGPort provides seeded random number generation for deterministic runs.
type RNGPort interface {
	// SeededStream creates a deterministic generator for a named operation.
	// The same (name, seed) pair always yields an identical stream.
	SeededStream(name string, seed int64) *rand.Rand

	// ChainStream creates the generator for one sampler chain. The stream
	// depends only on (baseSeed, chain), so adding chains never perturbs
	// existing ones.
	ChainStream(baseSeed int64, chain int) *rand.Rand
}
