package types

import (
	"fmt"
	"math"
)

/*
LatticeKey packs a pair of non-negative lattice coordinates into a uint64 so it can be used as a map key.
The pair keeps its order: (i,j) and (j,i) are different keys.
*/
type LatticeKey uint64

func NewLatticeKey(i, j int) LatticeKey {
	var (
		limit = math.MaxUint32
	)
	if i < 0 || j < 0 || i > limit || j > limit {
		panic(fmt.Errorf("unable to pack lattice coordinates into a uint64, have %d and %d as inputs", i, j))
	}
	return LatticeKey(uint64(i) | uint64(j)<<32)
}

// NewPairKey is the order independent key of two node ids: (a,b) and (b,a) pack the same
func NewPairKey(a, b int) LatticeKey {
	if a > b {
		a, b = b, a
	}
	return NewLatticeKey(a, b)
}
