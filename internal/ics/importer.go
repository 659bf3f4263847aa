package ics

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/store"
)

// ImportResult summarizes one Sync run.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed_sources"`
}

// Importer mirrors subscribed feeds into the event store. Imported events
// are keyed by (source ID, UID); events whose UID disappears from a feed
// that was fetched successfully are deleted. Recurring series are stored as
// their anchored occurrence.
type Importer struct {
	store   store.Store
	fetcher *Fetcher
	sources []Source
	loc     *time.Location
	now     func() time.Time

	// mu serializes runs triggered by the scheduler and the HTTP endpoint.
	mu sync.Mutex
}

func NewImporter(st store.Store, fetcher *Fetcher, sources []Source, loc *time.Location) *Importer {
	return &Importer{store: st, fetcher: fetcher, sources: sources, loc: loc, now: time.Now}
}

// Sources returns the configured feeds.
func (im *Importer) Sources() []Source { return im.sources }

// Sync fetches every feed and reconciles the store with it.
func (im *Importer) Sync(ctx context.Context) (ImportResult, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	var res ImportResult
	if len(im.sources) == 0 {
		return res, nil
	}
	now := im.now()

	fetched, fetchErrs := im.fetcher.FetchAll(ctx, im.sources)
	res.Failed = len(fetchErrs)

	existing, err := im.store.List(ctx)
	if err != nil {
		return res, err
	}
	index := make(map[string]map[string]model.Event)
	for _, ev := range existing {
		if ev.SourceID == "" || ev.UID == "" {
			continue
		}
		if index[ev.SourceID] == nil {
			index[ev.SourceID] = make(map[string]model.Event)
		}
		index[ev.SourceID][ev.UID] = ev
	}

	for _, fr := range fetched {
		parsed, err := ParseICS(fr.Source, fr.Body, im.loc)
		if err != nil {
			res.Failed++
			continue
		}
		known := index[fr.Source.ID]
		seen := make(map[string]bool, len(parsed))

		for _, pe := range parsed {
			if seen[pe.UID] {
				res.Skipped++
				continue
			}
			seen[pe.UID] = true
			pe = pe.Anchor(now)

			if prev, ok := known[pe.UID]; ok {
				_, err := im.store.Update(ctx, prev.ID, pe.Fields())
				if err == nil {
					res.Updated++
					continue
				}
				// Removed locally since the listing; import it again.
				if !errors.Is(err, model.ErrNotFound) {
					return res, err
				}
			}
			if _, err := im.store.Create(ctx, pe.Fields()); err != nil {
				if errors.Is(err, model.ErrValidation) {
					res.Skipped++
					continue
				}
				return res, err
			}
			res.Created++
		}

		for uid, ev := range known {
			if seen[uid] {
				continue
			}
			if err := im.store.Delete(ctx, ev.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
				return res, err
			}
			res.Deleted++
		}
	}

	appLog.Info("ics import completed",
		"created", res.Created,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"skipped", res.Skipped,
		"failed_sources", res.Failed,
	)
	return res, nil
}
