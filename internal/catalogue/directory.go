// Package catalogue provides in-memory implementations of the catalogue and
// identity providers the engine consumes.
package catalogue

import (
	"context"
	"sort"
	"sync"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
)

// Directory stores works and identities and accumulates revenue reported by
// the engine.
type Directory struct {
	mu         sync.RWMutex
	works      map[string]models.Work
	identities map[string]models.Identity
}

func NewDirectory() *Directory {
	return &Directory{
		works:      make(map[string]models.Work),
		identities: make(map[string]models.Identity),
	}
}

// PutWork registers or replaces a work's metadata. Revenue already recorded
// for the work is preserved.
func (d *Directory) PutWork(w models.Work) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.works[w.ID]; ok {
		w.RevenueTotal = existing.RevenueTotal
	}
	d.works[w.ID] = w
}

func (d *Directory) PutIdentity(id models.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.identities[id.UserID] = id
}

func (d *Directory) Work(_ context.Context, workID string) (models.Work, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	w, ok := d.works[workID]
	if !ok {
		return models.Work{}, apperrors.New(apperrors.KindNotFound, apperrors.Details{"workId": workID}, "unknown work")
	}
	return w, nil
}

func (d *Directory) WorksByCreator(_ context.Context, creatorID string) ([]models.Work, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []models.Work
	for _, w := range d.works {
		if w.CreatorID == creatorID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Directory) RecordRevenue(_ context.Context, workID string, amount models.Amount) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.works[workID]
	if !ok {
		return apperrors.New(apperrors.KindNotFound, apperrors.Details{"workId": workID}, "unknown work")
	}
	w.RevenueTotal += amount
	d.works[workID] = w
	return nil
}

func (d *Directory) Identity(_ context.Context, userID string) (models.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.identities[userID]
	if !ok {
		return models.Identity{}, apperrors.New(apperrors.KindNotFound, apperrors.Details{"userId": userID}, "unknown user")
	}
	return id, nil
}
