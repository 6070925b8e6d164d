package feed_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"drudge/feed"
	"drudge/forum"
	"drudge/models"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex answers lookups from a table. Titles with a gate block until the gate is closed.
type fakeIndex struct {
	mu      sync.Mutex
	results map[string][]models.Discussion
	errs    map[string]error
	gates   map[string]chan struct{}
	calls   []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		results: map[string][]models.Discussion{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
	}
}

func (f *fakeIndex) SearchDiscussions(ctx context.Context, q string) ([]models.Discussion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	gate := f.gates[q]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[q]; err != nil {
		return nil, err
	}
	return f.results[q], nil
}

func (f *fakeIndex) DiscussionURL(id string) string {
	return "https://forum.test/d/" + id
}

func (f *fakeIndex) ComposerURL(title string) string {
	return "https://forum.test/composer?title=" + forum.EncodeURIComponent(title)
}

func anchor(text string) string {
	return `<a href="https://n.example/` + text + `">` + text + `</a>`
}

func payload(t *testing.T, entries ...models.ArticleEntry) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	return data
}

func snapshot(version uint64, entries ...models.ArticleEntry) models.Snapshot {
	return models.Snapshot{Version: version, Kind: models.UpdateDocuments, Entries: entries}
}

func TestDeriveOrdersAndBuildsLinks(t *testing.T) {
	p := feed.NewPipeline(context.Background(), feed.NewResolver(newFakeIndex(), time.Second), feed.PipelineConfig{})

	list := p.Derive(snapshot(3,
		models.ArticleEntry{Title: "b", Link: anchor("Second"), PageLocation: "column2"},
		models.ArticleEntry{Title: "a", Link: anchor("Top Story"), PageLocation: "Headline"},
		models.ArticleEntry{Title: "n", Link: "<a href=\"/n\"><img></a>", PageLocation: "sidebar"},
	))

	require.Len(t, list.Entries, 3)
	assert.Equal(t, uint64(3), list.Version)
	assert.Equal(t, []string{"n", "a", "b"}, lo.Map(list.Entries, func(e models.DisplayEntry, _ int) string { return e.Title }))
	assert.Equal(t, []int{-1, 0, 3}, lo.Map(list.Entries, func(e models.DisplayEntry, _ int) int { return e.OrderKey }))

	top := list.Entries[1]
	assert.Equal(t, "Top Story", top.LinkText)
	assert.Equal(t, models.Link{Href: "https://n.example/Top Story", Text: "Top Story", OpensNewTab: true}, top.SourceLink)
	assert.Equal(t, models.Link{
		Href:        "https://forum.test/composer?title=Top%20Story",
		Text:        feed.CompanionText,
		OpensNewTab: true,
	}, top.CompanionLink)

	assert.Equal(t, "", list.Entries[0].LinkText)
	assert.Equal(t, "https://forum.test/composer?title=", list.Entries[0].CompanionLink.Href)
}

func TestClickTimeModePublishesWithoutLookups(t *testing.T) {
	index := newFakeIndex()
	store := feed.NewStore()
	p := feed.NewPipeline(context.Background(), feed.NewResolver(index, time.Second), feed.PipelineConfig{})
	store.OnReplace(p.Submit)

	var published []models.DisplayList
	p.OnPublish(func(list models.DisplayList) { published = append(published, list) })

	store.ReplaceAll(models.InitialDocuments, payload(t,
		models.ArticleEntry{Title: "a", Link: anchor("A"), PageLocation: "column1"},
		models.ArticleEntry{Title: "b", Link: anchor("B"), PageLocation: "Headline"},
	))

	require.Len(t, published, 1)
	assert.Len(t, p.Current().Entries, 2)
	assert.Equal(t, uint64(1), p.Current().Version)
	assert.False(t, p.Current().DerivedAt.IsZero())
	assert.Empty(t, index.calls)
}

func TestEagerModeResolvesCompanionLinks(t *testing.T) {
	index := newFakeIndex()
	index.results["Found"] = []models.Discussion{{ID: "1", Title: "Found it"}, {ID: "12", Title: "Found"}}
	index.results["Near"] = []models.Discussion{{ID: "3", Title: "near"}}
	index.errs["Broken"] = errors.New("connection refused")

	store := feed.NewStore()
	p := feed.NewPipeline(context.Background(), feed.NewResolver(index, time.Second), feed.PipelineConfig{EagerLookup: true, Workers: 2})
	store.OnReplace(p.Submit)

	require.True(t, store.ReplaceAll(models.InitialDocuments, payload(t,
		models.ArticleEntry{Title: "1", Link: anchor("Found"), PageLocation: "Headline"},
		models.ArticleEntry{Title: "2", Link: anchor("Near"), PageLocation: "column1"},
		models.ArticleEntry{Title: "3", Link: anchor("Broken"), PageLocation: "column2"},
		models.ArticleEntry{Title: "4", Link: anchor("Missing"), PageLocation: "column3"},
	)))
	p.Wait()

	list := p.Current()
	require.Len(t, list.Entries, 4)
	hrefs := lo.Map(list.Entries, func(e models.DisplayEntry, _ int) string { return e.CompanionLink.Href })
	assert.Equal(t, []string{
		"https://forum.test/d/12",
		"https://forum.test/composer?title=Near",
		"https://forum.test/composer?title=Broken",
		"https://forum.test/composer?title=Missing",
	}, hrefs)
}

func TestEagerModeDropsSupersededBatch(t *testing.T) {
	index := newFakeIndex()
	slow := make(chan struct{})
	index.gates["Old"] = slow
	index.results["Old"] = []models.Discussion{{ID: "1", Title: "Old"}}
	index.results["New"] = []models.Discussion{{ID: "2", Title: "New"}}

	store := feed.NewStore()
	p := feed.NewPipeline(context.Background(), feed.NewResolver(index, 5*time.Second), feed.PipelineConfig{EagerLookup: true})
	store.OnReplace(p.Submit)

	var mu sync.Mutex
	var published []uint64
	p.OnPublish(func(list models.DisplayList) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, list.Version)
	})

	store.ReplaceAll(models.InitialDocuments, payload(t, models.ArticleEntry{Title: "old", Link: anchor("Old"), PageLocation: "Headline"}))
	store.ReplaceAll(models.UpdateDocuments, payload(t, models.ArticleEntry{Title: "new", Link: anchor("New"), PageLocation: "Headline"}))

	require.Eventually(t, func() bool { return p.Current().Version == 2 }, time.Second, 5*time.Millisecond)

	close(slow)
	p.Wait()

	list := p.Current()
	assert.Equal(t, uint64(2), list.Version)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "new", list.Entries[0].Title)
	assert.Equal(t, "https://forum.test/d/2", list.Entries[0].CompanionLink.Href)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{2}, published)
}

func TestSubmitIgnoresOlderSnapshot(t *testing.T) {
	p := feed.NewPipeline(context.Background(), feed.NewResolver(newFakeIndex(), time.Second), feed.PipelineConfig{})

	p.Submit(snapshot(5, models.ArticleEntry{Title: "five", Link: anchor("Five"), PageLocation: "Headline"}))
	p.Submit(snapshot(4, models.ArticleEntry{Title: "four", Link: anchor("Four"), PageLocation: "Headline"}))

	assert.Equal(t, uint64(5), p.Current().Version)
	assert.Equal(t, "five", p.Current().Entries[0].Title)
}

func TestResolverWithForumClient(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		expected string
		existing bool
	}{
		{
			name: "empty data yields composer",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"data":[]}`))
			},
			expected: "/forum/composer?title=Storm%20%26%20Surge",
		},
		{
			name: "exact title yields discussion",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"data":[{"id":"77","attributes":{"title":"Storm & Surge"}}]}`))
			},
			expected: "/forum/d/77",
			existing: true,
		},
		{
			name: "server error yields composer",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			expected: "/forum/composer?title=Storm%20%26%20Surge",
		},
		{
			name: "timeout yields composer",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(300 * time.Millisecond)
				w.Write([]byte(`{"data":[{"id":"77","attributes":{"title":"Storm & Surge"}}]}`))
			},
			expected: "/forum/composer?title=Storm%20%26%20Surge",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := forum.NewClient(srv.URL+"/forum", "", srv.Client())
			resolver := feed.NewResolver(client, 50*time.Millisecond)

			res := resolver.Resolve(context.Background(), "Storm & Surge")

			assert.Equal(t, srv.URL+tt.expected, res.URL)
			assert.Equal(t, tt.existing, res.Existing)
		})
	}
}

func TestEnricherKeepsInputOrder(t *testing.T) {
	index := newFakeIndex()
	titles := []string{"a", "b", "c", "d", "e", "f", "g"}
	for i, title := range titles {
		index.results[title] = []models.Discussion{{ID: title + "-id", Title: title}}
		if i%2 == 0 {
			gate := make(chan struct{})
			index.gates[title] = gate
			i := i
			go func() {
				time.Sleep(time.Duration(10*(len(titles)-i)) * time.Millisecond)
				close(gate)
			}()
		}
	}

	enricher := feed.NewEnricher(feed.NewResolver(index, time.Second), 3)
	results := enricher.Enrich(context.Background(), titles)

	ids := lo.Map(results, func(r models.Resolution, _ int) string { return r.DiscussionID })
	assert.Equal(t, []string{"a-id", "b-id", "c-id", "d-id", "e-id", "f-id", "g-id"}, ids)
	assert.Empty(t, enricher.Enrich(context.Background(), nil))
}
