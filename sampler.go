package qbridge

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// cancelCheckInterval is how many draws a chunk makes between context checks.
const cancelCheckInterval = 1024

/*
Sampler draws measurement outcomes from a probability vector. Draws are split
into chunks once the shot count is large enough to be worth the goroutines.
Each chunk owns a PCG source seeded from (seed, chunk index), so a fixed seed
and worker count always reproduce the same histogram. All chunks read one
cumulative distribution and add into one tally, so a run costs the same
memory whatever the chunk count.
*/
type Sampler struct {
	workers  int
	minChunk int
}

func NewSampler(workers, minChunk int) *Sampler {
	if workers < 1 {
		workers = 1
	}
	if minChunk < 1 {
		minChunk = 1
	}

	return &Sampler{workers: workers, minChunk: minChunk}
}

/*
Sample performs shots independent categorical draws over probs and returns
the counts as width-character bitstrings. Counts always sum to shots. Sample
takes ownership of probs and overwrites it with its running sum.
*/
func (s *Sampler) Sample(
	ctx context.Context, probs []float64, shots, width int, seed uint64,
) (Histogram, error) {
	if shots <= 0 {
		return nil, validationErrorf("shots", "must be positive, got %d", shots)
	}

	if len(probs) == 0 {
		return nil, validationErrorf("probabilities", "must not be empty")
	}

	cdf := floats.CumSum(probs, probs)
	if cdf[len(cdf)-1] <= 0 {
		return nil, validationErrorf("probabilities", "must not sum to zero")
	}

	tally := make([]atomic.Uint64, len(cdf))

	g, ctx := errgroup.WithContext(ctx)

	for i, size := range splitShots(shots, s.chunks(shots)) {
		g.Go(func() error {
			return drawChunk(ctx, cdf, tally, size, rand.NewPCG(seed, uint64(i)))
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return tallyHistogram(tally, width), nil
}

func (s *Sampler) chunks(shots int) int {
	if shots < 2*s.minChunk {
		return 1
	}

	return min(s.workers, shots/s.minChunk)
}

// splitShots divides shots into n sizes differing by at most one.
func splitShots(shots, n int) []int {
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = shots / n
		if i < shots%n {
			sizes[i]++
		}
	}
	return sizes
}

/*
drawChunk inverts the shared cumulative distribution for each draw. The
first index whose running sum exceeds the uniform draw has a non-zero
probability, so impossible outcomes are never counted.
*/
func drawChunk(
	ctx context.Context, cdf []float64, tally []atomic.Uint64, draws int, src rand.Source,
) error {
	rng := rand.New(src)
	last := len(cdf) - 1
	total := cdf[last]

	for d := 0; d < draws; d++ {
		if d%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		u := rng.Float64() * total
		idx := sort.Search(len(cdf), func(i int) bool { return cdf[i] > u })

		tally[min(idx, last)].Add(1)
	}

	return nil
}

func tallyHistogram(tally []atomic.Uint64, width int) Histogram {
	outcomes := 0
	for i := range tally {
		if tally[i].Load() > 0 {
			outcomes++
		}
	}

	h := make(Histogram, outcomes)
	for i := range tally {
		if n := tally[i].Load(); n > 0 {
			h[BasisIndex(i).Bitstring(width)] = int(n)
		}
	}

	return h
}
