package feed

import (
	"context"
	"time"

	"drudge/forum"
	"drudge/models"

	log "github.com/sirupsen/logrus"
)

// CompanionText is the label of every companion link
const CompanionText = "\U0001F632"

const DefaultLookupTimeout = 5 * time.Second

// Index is the discussion index companion links are resolved against
type Index interface {
	SearchDiscussions(ctx context.Context, q string) ([]models.Discussion, error)
	DiscussionURL(id string) string
	ComposerURL(title string) string
}

// Resolver decides where a companion link points. Lookups are best effort:
// any failure degrades to the composer link.
type Resolver struct {
	index   Index
	timeout time.Duration
}

func NewResolver(index Index, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Resolver{index: index, timeout: timeout}
}

// ComposerLink is the optimistic companion link, built without a lookup
func (r *Resolver) ComposerLink(title string) models.Link {
	return models.Link{
		Href:        r.index.ComposerURL(title),
		Text:        CompanionText,
		OpensNewTab: true,
	}
}

// Resolve looks title up in the index and returns the first exact match,
// or the composer when there is none or the lookup fails.
func (r *Resolver) Resolve(ctx context.Context, title string) models.Resolution {
	composer := models.Resolution{URL: r.index.ComposerURL(title)}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	discussions, err := r.index.SearchDiscussions(ctx, title)
	lookupDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		lookupsTotal.WithLabelValues("failed").Inc()
		log.WithFields(log.Fields{
			"title": title,
			"error": err,
		}).Warn("Discussion lookup failed, falling back to composer")
		return composer
	}

	matches := forum.ExactMatches(discussions, title)
	if len(matches) == 0 {
		lookupsTotal.WithLabelValues("composer").Inc()
		return composer
	}

	lookupsTotal.WithLabelValues("existing").Inc()
	return models.Resolution{
		URL:          r.index.DiscussionURL(matches[0].ID),
		DiscussionID: matches[0].ID,
		Existing:     true,
	}
}
