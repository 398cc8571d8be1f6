package service

import (
	"golang.org/x/sync/errgroup"

	"catalog-sync/internal/reconcile/model"
)

// DefaultThreshold is the minimum score for two records to be treated as one product.
const DefaultThreshold = 0.7

// pair is a match by input positions: i claimed j.
type pair struct {
	i, j int
	res  model.SimilarityResult
}

// Group is a greedy single pass over the batch. Every unprocessed record i
// claims each later unprocessed record scoring >= threshold. Grouping is not
// transitive: two records that both resemble a third are not matched with
// each other unless they score against each other. The threshold is used as
// given; callers wanting the default pass DefaultThreshold.
func Group(records []model.ProductRecord, threshold float64) ([]model.SimilarityResult, []model.ProductRecord) {
	pairs, uniq := groupPairs(records, threshold, 1)
	matches := make([]model.SimilarityResult, 0, len(pairs))
	for _, p := range pairs {
		matches = append(matches, p.res)
	}
	uniques := make([]model.ProductRecord, 0, len(uniq))
	for _, i := range uniq {
		uniques = append(uniques, records[i])
	}
	return matches, uniques
}

// groupPairs does the pass. With workers > 1 the candidates of one row are
// scored concurrently; the processed set is only touched between rows, so
// the result is the same as the sequential pass.
func groupPairs(records []model.ProductRecord, threshold float64, workers int) ([]pair, []int) {
	var (
		pairs     []pair
		uniques   []int
		processed = make([]bool, len(records))
	)

	for i := range records {
		if processed[i] {
			continue
		}

		cands := make([]int, 0, len(records)-i)
		for j := i + 1; j < len(records); j++ {
			if !processed[j] {
				cands = append(cands, j)
			}
		}

		scores := scoreRow(records, i, cands, workers)
		found := false
		for k, j := range cands {
			if scores[k].Score >= threshold {
				pairs = append(pairs, pair{i: i, j: j, res: scores[k]})
				processed[j] = true
				found = true
			}
		}
		if found {
			processed[i] = true
		} else {
			uniques = append(uniques, i)
		}
	}
	return pairs, uniques
}

// minParallelRow: короткие строки дешевле посчитать в одном потоке
const minParallelRow = 64

func scoreRow(records []model.ProductRecord, i int, cands []int, workers int) []model.SimilarityResult {
	out := make([]model.SimilarityResult, len(cands))
	if workers <= 1 || len(cands) < minParallelRow {
		for k, j := range cands {
			out[k] = Score(records[i], records[j])
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for k, j := range cands {
		g.Go(func() error {
			out[k] = Score(records[i], records[j])
			return nil
		})
	}
	_ = g.Wait()
	return out
}
