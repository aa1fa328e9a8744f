package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionMap(t *testing.T) {
	getHisto := func(K, Np int) (histo map[int]int) {
		pm := NewPartitionMap(Np, K)
		histo = make(map[int]int)
		for np := 0; np < pm.ParallelDegree; np++ {
			kMin, kMax := pm.GetBucketRange(np)
			histo[kMax-kMin]++
		}
		return
	}
	getTotal := func(histo map[int]int) (total int) {
		for key, count := range histo {
			total += key * count
		}
		return
	}
	{
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, map[int]int{0: 1}, getHisto(0, 1))
		assert.Equal(t, 1, NewPartitionMap(0, 10).ParallelDegree)
	}
	{ // Buckets are contiguous, cover the range and differ by at most one
		for n := 64; n < 2000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1]))
			}
			assert.Equal(t, n, getTotal(histo))
			pm := NewPartitionMap(32, n)
			for bn := 1; bn < pm.ParallelDegree; bn++ {
				_, prevMax := pm.GetBucketRange(bn - 1)
				kMin, _ := pm.GetBucketRange(bn)
				assert.Equal(t, prevMax, kMin)
			}
		}
	}
}
