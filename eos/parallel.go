package eos

import (
	"sync"

	"github.com/notargets/phtab/utils"
)

// EvaluateParallel splits q into np contiguous batches evaluated concurrently, ev must be safe for
// concurrent use. The result is in the order of q and the first batch error is returned.
func EvaluateParallel(ev Evaluator, q Query, props []string, np int) (r *Result, err error) {
	if np <= 1 || q.Len() < 2*np {
		return ev.Evaluate(q, props)
	}
	if err = q.check(); err != nil {
		return
	}
	var (
		pm      = utils.NewPartitionMap(np, q.Len())
		results = make([]*Result, np)
		errs    = make([]error, np)
		wg      sync.WaitGroup
	)
	for bn := 0; bn < np; bn++ {
		kMin, kMax := pm.GetBucketRange(bn)
		sub := Query{Kind: q.Kind, P: q.P[kMin:kMax]}
		if q.X != nil {
			sub.X = q.X[kMin:kMax]
		}
		wg.Add(1)
		go func(bn int, sub Query) {
			defer wg.Done()
			results[bn], errs[bn] = ev.Evaluate(sub, props)
		}(bn, sub)
	}
	wg.Wait()
	for _, err = range errs {
		if err != nil {
			return nil, err
		}
	}
	r = newResult(q.Len(), props)
	for bn, res := range results {
		kMin, _ := pm.GetBucketRange(bn)
		for _, name := range props {
			copy(r.Values[name][kMin:], res.Values[name])
		}
		copy(r.Status[kMin:], res.Status)
	}
	return
}
