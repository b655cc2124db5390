// Package rng provides the deterministic seeded-stream adapter backing
// ports.RNGPort. Stream seeds are derived by hashing the stream identity so
// distinct operations never share a generator state.
package rng

import (
	"hash/fnv"
	"math/rand"
	"strconv"
)

// Adapter implements ports.RNGPort.
type Adapter struct{}

// NewAdapter creates a deterministic RNG adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// SeededStream derives a generator from (name, seed).
func (a *Adapter) SeededStream(name string, seed int64) *rand.Rand {
	return rand.New(rand.NewSource(deriveSeed(name, seed)))
}

// ChainStream derives a generator from (baseSeed, chain) only, so chain k's
// stream is identical whether 1 or 100 chains run.
func (a *Adapter) ChainStream(baseSeed int64, chain int) *rand.Rand {
	return a.SeededStream("chain/"+strconv.Itoa(chain), baseSeed)
}

func deriveSeed(name string, seed int64) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	h.Write([]byte(strconv.FormatInt(seed, 10)))
	derived := int64(h.Sum64() & 0x7fffffffffffffff)
	if derived == 0 {
		derived = 1
	}
	return derived
}
