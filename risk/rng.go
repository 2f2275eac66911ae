package risk

import "hash/fnv"

// SimulationKey uniquely identifies a reproducible simulation run.
// Two runs with the same SimulationKey and identical tree snapshot MUST
// produce bit-for-bit identical results, regardless of trial parallelism.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// ForNode derives the seed for one leaf's sample stream.
//
// Derivation formula: masterSeed XOR fnv1a64(nodeID). Distinct leaves get
// isolated streams from the same master seed; the same (seed, nodeID) pair
// always derives the same value.
func (k SimulationKey) ForNode(id NodeID) int64 {
	return int64(k) ^ fnv1a64(string(id))
}

// mix64 is the SplitMix64 finalizer. Used to spread a small trial index
// across the full 64-bit state word before it seeds a generator, so that
// consecutive trials do not start from near-identical states.
func mix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
