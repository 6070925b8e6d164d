package feed

import (
	"context"
	"sync"
	"time"

	"drudge/models"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// PipelineConfig controls how companion links are enriched
type PipelineConfig struct {
	// EagerLookup resolves companion links against the discussion index as
	// soon as a snapshot arrives. When false every companion link is the
	// composer link and resolution happens at click time.
	EagerLookup bool
	Workers     int
}

// Pipeline turns accepted snapshots into published display lists
type Pipeline struct {
	sync.RWMutex
	ctx      context.Context
	resolver *Resolver
	enricher *Enricher
	eager    bool

	latest     uint64
	current    models.DisplayList
	publishers []func(models.DisplayList)

	// serializes publish so subscribers observe versions in order
	emit     sync.Mutex
	inflight sync.WaitGroup
}

func NewPipeline(ctx context.Context, resolver *Resolver, config PipelineConfig) *Pipeline {
	return &Pipeline{
		ctx:      ctx,
		resolver: resolver,
		enricher: NewEnricher(resolver, config.Workers),
		eager:    config.EagerLookup,
		current:  models.DisplayList{Entries: []models.DisplayEntry{}},
	}
}

// OnPublish registers a callback for every published display list
func (p *Pipeline) OnPublish(fn func(models.DisplayList)) {
	p.Lock()
	defer p.Unlock()
	p.publishers = append(p.publishers, fn)
}

// Derive orders the snapshot and builds display entries with optimistic
// composer companion links. It does no I/O.
func (p *Pipeline) Derive(snap models.Snapshot) models.DisplayList {
	ordered := Order(snap.Entries)

	entries := lo.Map(ordered, func(entry models.ArticleEntry, _ int) models.DisplayEntry {
		text := LinkText(entry.Link)
		return models.DisplayEntry{
			Title:         entry.Title,
			Zone:          entry.PageLocation,
			OrderKey:      OrderKey(entry.PageLocation),
			LinkText:      text,
			SourceLink:    SourceLink(entry.Link),
			CompanionLink: p.resolver.ComposerLink(text),
		}
	})

	return models.DisplayList{
		Version: snap.Version,
		Entries: entries,
	}
}

// Submit re-derives the view for snap. It is meant to be registered with
// Store.OnReplace. Results of a snapshot that has been superseded by the time
// its enrichment finishes are discarded.
func (p *Pipeline) Submit(snap models.Snapshot) {
	p.Lock()
	if snap.Version < p.latest {
		p.Unlock()
		log.WithFields(log.Fields{
			"version": snap.Version,
			"latest":  p.latest,
		}).Debug("Ignoring out of order snapshot")
		return
	}
	p.latest = snap.Version
	p.Unlock()

	list := p.Derive(snap)

	if !p.eager {
		p.publish(list)
		return
	}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		start := time.Now()
		titles := lo.Map(list.Entries, func(entry models.DisplayEntry, _ int) string {
			return entry.LinkText
		})
		resolutions := p.enricher.Enrich(p.ctx, titles)
		for i, res := range resolutions {
			list.Entries[i].CompanionLink.Href = res.URL
		}
		enrichDuration.Observe(time.Since(start).Seconds())

		p.publish(list)
	}()
}

func (p *Pipeline) publish(list models.DisplayList) {
	p.emit.Lock()
	defer p.emit.Unlock()

	p.Lock()
	if list.Version != p.latest {
		latest := p.latest
		p.Unlock()
		batchesStale.Inc()
		log.WithFields(log.Fields{
			"version": list.Version,
			"latest":  latest,
		}).Debug("Dropping stale display batch")
		return
	}
	list.DerivedAt = time.Now()
	p.current = list
	publishers := make([]func(models.DisplayList), len(p.publishers))
	copy(publishers, p.publishers)
	p.Unlock()

	batchesPublished.Inc()
	log.WithFields(log.Fields{
		"version": list.Version,
		"entries": len(list.Entries),
	}).Info("Published display list")

	for _, fn := range publishers {
		fn(list)
	}
}

// Current returns the latest published display list
func (p *Pipeline) Current() models.DisplayList {
	p.RLock()
	defer p.RUnlock()
	return p.current
}

// Resolve performs the authoritative, click-time lookup for a link text
func (p *Pipeline) Resolve(ctx context.Context, title string) models.Resolution {
	return p.resolver.Resolve(ctx, title)
}

// Wait blocks until in-flight enrichment batches have finished
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}
