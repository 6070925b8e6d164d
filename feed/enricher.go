package feed

import (
	"context"
	"sync"

	"drudge/models"
)

const DefaultWorkers = 8

type enrichJob struct {
	index int
	title string
}

// Enricher resolves companion links for a batch on a bounded set of workers
type Enricher struct {
	maxWorkers int
	resolver   *Resolver
}

func NewEnricher(resolver *Resolver, maxWorkers int) *Enricher {
	if maxWorkers < 1 {
		maxWorkers = DefaultWorkers
	}
	return &Enricher{maxWorkers: maxWorkers, resolver: resolver}
}

// Enrich resolves every title. Results line up with titles regardless of
// the order lookups complete in.
func (e *Enricher) Enrich(ctx context.Context, titles []string) []models.Resolution {
	results := make([]models.Resolution, len(titles))
	if len(titles) == 0 {
		return results
	}

	workers := min(e.maxWorkers, len(titles))
	queue := make(chan enrichJob)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				results[job.index] = e.resolver.Resolve(ctx, job.title)
			}
		}()
	}

	for i, title := range titles {
		queue <- enrichJob{index: i, title: title}
	}
	close(queue)

	wg.Wait()
	return results
}
