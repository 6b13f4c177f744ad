// Package entitlements tracks paid access (monthly subscriptions and chapter
// purchases) and the action counters that unlock investment opportunities.
package entitlements

import (
	"sync"
	"time"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
)

// DefaultActionsPerOpportunity is how many subscriptions and donations earn
// one investment opportunity.
const DefaultActionsPerOpportunity = 5

type counters struct {
	subscriptions int
	donations     int
	consumed      int
}

func (c counters) combined() int { return c.subscriptions + c.donations }

// Tracker is the owned store of grants and opportunity counters.
type Tracker struct {
	mu        sync.Mutex
	grants    map[string][]models.EntitlementRecord // user -> grants
	counters  map[string]*counters
	perAction int
	now       func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(actionsPerOpportunity int, opts ...Option) *Tracker {
	if actionsPerOpportunity <= 0 {
		actionsPerOpportunity = DefaultActionsPerOpportunity
	}
	t := &Tracker{
		grants:    make(map[string][]models.EntitlementRecord),
		counters:  make(map[string]*counters),
		perAction: actionsPerOpportunity,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OpportunityDelta is the number of opportunities unlocked by moving the
// combined action count from oldCount to newCount.
func OpportunityDelta(oldCount, newCount, perOpportunity int) int {
	return newCount/perOpportunity - oldCount/perOpportunity
}

// GrantSubscription records access. Monthly grants carry expiresAt (nil
// means open ended); chapter grants are permanent and name a chapter.
func (t *Tracker) GrantSubscription(userID, workID string, kind models.EntitlementKind, price models.Amount, expiresAt *time.Time, chapterID string) models.EntitlementRecord {
	rec := models.EntitlementRecord{
		UserID:    userID,
		WorkID:    workID,
		Kind:      kind,
		Price:     price,
		GrantedAt: t.now(),
	}
	switch kind {
	case models.EntitlementMonthly:
		if expiresAt != nil {
			exp := *expiresAt
			rec.ExpiresAt = &exp
		}
	case models.EntitlementChapter:
		rec.ChapterID = chapterID
	}

	t.mu.Lock()
	t.grants[userID] = append(t.grants[userID], rec)
	t.mu.Unlock()
	return rec
}

// HasActiveMonthly reports whether the user holds an unexpired monthly grant
// for the work.
func (t *Tracker) HasActiveMonthly(userID, workID string) bool {
	return t.ActiveMonthlyCount(userID, workID) > 0
}

// ActiveMonthlyCount counts the user's unexpired monthly grants for the work.
func (t *Tracker) ActiveMonthlyCount(userID, workID string) int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, g := range t.grants[userID] {
		if g.WorkID == workID && g.Kind == models.EntitlementMonthly && g.ActiveAt(now) {
			n++
		}
	}
	return n
}

func (t *Tracker) HasChapterAccess(userID, workID, chapterID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, g := range t.grants[userID] {
		if g.WorkID == workID && g.Kind == models.EntitlementChapter && g.ChapterID == chapterID {
			return true
		}
	}
	return false
}

// Grants returns a copy of the user's grants, oldest first.
func (t *Tracker) Grants(userID string) []models.EntitlementRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.EntitlementRecord(nil), t.grants[userID]...)
}

// RecordSubscription counts a completed access purchase and returns the
// opportunities it unlocked.
func (t *Tracker) RecordSubscription(userID string) int {
	return t.recordAction(userID, func(c *counters) { c.subscriptions++ })
}

// RecordDonation counts a completed donation and returns the opportunities
// it unlocked.
func (t *Tracker) RecordDonation(userID string) int {
	return t.recordAction(userID, func(c *counters) { c.donations++ })
}

// recordAction reads the old count, increments and computes the delta in one
// critical section so concurrent actions by the same user cannot both claim
// the same threshold.
func (t *Tracker) recordAction(userID string, inc func(*counters)) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.countersLocked(userID)
	before := c.combined()
	inc(c)
	return OpportunityDelta(before, c.combined(), t.perAction)
}

// OpportunitiesAvailable is floor(combined / perOpportunity) - consumed.
func (t *Tracker) OpportunitiesAvailable(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.availableLocked(t.countersLocked(userID))
}

// ConsumeOpportunity spends one opportunity.
func (t *Tracker) ConsumeOpportunity(userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.countersLocked(userID)
	if available := t.availableLocked(c); available <= 0 {
		return apperrors.New(apperrors.KindNoOpportunityAvailable,
			apperrors.Details{"combinedActionCount": c.combined(), "consumed": c.consumed, "actionsPerOpportunity": t.perAction},
			"no investment opportunity available")
	}
	c.consumed++
	return nil
}

// ReleaseOpportunity returns an opportunity spent by a purchase that did not
// commit.
func (t *Tracker) ReleaseOpportunity(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c := t.countersLocked(userID); c.consumed > 0 {
		c.consumed--
	}
}

// Stats returns the user's counters.
func (t *Tracker) Stats(userID string) models.OpportunityStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.countersLocked(userID)
	return models.OpportunityStats{
		Subscriptions: c.subscriptions,
		Donations:     c.donations,
		Combined:      c.combined(),
		Consumed:      c.consumed,
		Available:     t.availableLocked(c),
	}
}

func (t *Tracker) availableLocked(c *counters) int {
	return c.combined()/t.perAction - c.consumed
}

func (t *Tracker) countersLocked(userID string) *counters {
	c, ok := t.counters[userID]
	if !ok {
		c = &counters{}
		t.counters[userID] = c
	}
	return c
}
