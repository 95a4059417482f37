package liftover

import (
	"sync"
)

// Coordinate chunks intervals into batches of at most chunkSize, lifts them
// on a bounded worker pool, and recombines the results by interval ID.
// Completion order between batches carries no meaning. Failed batches are
// returned as BatchErrors; their intervals are simply absent from the result
// map, i.e. unmapped.
func Coordinate(intervals []Interval, lifter Lifter, chunkSize, workers int) (map[int]Lifted, []BatchError) {
	if chunkSize <= 0 {
		chunkSize = len(intervals)
	}
	if workers <= 0 {
		workers = 1
	}

	type job struct {
		batch int
		ivs   []Interval
	}
	type result struct {
		batch  int
		lifted map[int]Lifted
		err    error
	}

	nBatches := 0
	if len(intervals) > 0 {
		nBatches = (len(intervals) + chunkSize - 1) / chunkSize
	}

	jobs := make(chan job)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				lifted, err := lifter.Lift(j.ivs)
				results <- result{batch: j.batch, lifted: lifted, err: err}
			}
		}()
	}

	go func() {
		for batch := 0; batch < nBatches; batch++ {
			lo := batch * chunkSize
			hi := lo + chunkSize
			if hi > len(intervals) {
				hi = len(intervals)
			}
			jobs <- job{batch: batch, ivs: intervals[lo:hi]}
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[int]Lifted, len(intervals))
	var errs []BatchError
	for res := range results {
		if res.err != nil {
			size := chunkSize
			if res.batch == nBatches-1 {
				size = len(intervals) - res.batch*chunkSize
			}
			errs = append(errs, BatchError{Batch: res.batch, Size: size, Err: res.err})
			continue
		}
		for id, lifted := range res.lifted {
			out[id] = lifted
		}
	}

	return out, errs
}
