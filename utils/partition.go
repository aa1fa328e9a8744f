package utils

// PartitionMap splits the index range [0,MaxIndex) into ParallelDegree buckets
// whose sizes differ by at most one
type PartitionMap struct {
	MaxIndex       int
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of each bucket
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	ParallelDegree = max(ParallelDegree, 1)
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

// Split1D returns the bounds of one bucket, the remainder going to the first buckets
func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	var (
		Npart            = pm.MaxIndex / pm.ParallelDegree
		remainder        = pm.MaxIndex % pm.ParallelDegree
		startAdd, endAdd int
	)
	if remainder != 0 {
		if threadNum+1 > remainder {
			startAdd = remainder
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}
