package entitlements

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
)

func TestOpportunityDelta(t *testing.T) {
	assert.Equal(t, 0, OpportunityDelta(0, 4, 5))
	assert.Equal(t, 1, OpportunityDelta(4, 5, 5))
	assert.Equal(t, 0, OpportunityDelta(5, 6, 5))
	assert.Equal(t, 2, OpportunityDelta(4, 10, 5))
}

func TestTracker_Opportunities(t *testing.T) {
	t.Run("unlocks exactly at the fifth action", func(t *testing.T) {
		tr := NewTracker(5)
		for i := 1; i <= 4; i++ {
			var delta int
			if i%2 == 0 {
				delta = tr.RecordDonation("ana")
			} else {
				delta = tr.RecordSubscription("ana")
			}
			assert.Zero(t, delta, "action %d", i)
			assert.Zero(t, tr.OpportunitiesAvailable("ana"))
		}

		assert.Equal(t, 1, tr.RecordDonation("ana"))
		assert.Equal(t, 1, tr.OpportunitiesAvailable("ana"))

		stats := tr.Stats("ana")
		assert.Equal(t, 2, stats.Subscriptions)
		assert.Equal(t, 3, stats.Donations)
		assert.Equal(t, 5, stats.Combined)
	})

	t.Run("consume never goes negative", func(t *testing.T) {
		tr := NewTracker(5)
		err := tr.ConsumeOpportunity("ben")
		require.ErrorIs(t, err, apperrors.ErrNoOpportunityAvailable)

		for i := 0; i < 5; i++ {
			tr.RecordSubscription("ben")
		}
		require.NoError(t, tr.ConsumeOpportunity("ben"))
		assert.ErrorIs(t, tr.ConsumeOpportunity("ben"), apperrors.ErrNoOpportunityAvailable)
		assert.Equal(t, 0, tr.OpportunitiesAvailable("ben"))
		assert.Equal(t, 1, tr.Stats("ben").Consumed)
	})

	t.Run("release returns a spent opportunity", func(t *testing.T) {
		tr := NewTracker(5)
		tr.ReleaseOpportunity("cai")
		assert.Zero(t, tr.Stats("cai").Consumed)

		for i := 0; i < 5; i++ {
			tr.RecordDonation("cai")
		}
		require.NoError(t, tr.ConsumeOpportunity("cai"))
		tr.ReleaseOpportunity("cai")
		assert.Equal(t, 1, tr.OpportunitiesAvailable("cai"))
		assert.Zero(t, tr.Stats("cai").Consumed)
	})

	t.Run("concurrent actions unlock each threshold once", func(t *testing.T) {
		tr := NewTracker(5)
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			total int
		)
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d := tr.RecordDonation("cai")
				mu.Lock()
				total += d
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 20, total)
		assert.Equal(t, 20, tr.OpportunitiesAvailable("cai"))
	})
}

func TestTracker_Grants(t *testing.T) {
	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(5, WithClock(func() time.Time { return clock }))

	expires := clock.Add(30 * 24 * time.Hour)
	tr.GrantSubscription("ana", "w1", models.EntitlementMonthly, models.Dollars(30), &expires, "")
	tr.GrantSubscription("ana", "w1", models.EntitlementChapter, models.Dollars(1), nil, "ch-7")

	t.Run("monthly active until expiry", func(t *testing.T) {
		assert.True(t, tr.HasActiveMonthly("ana", "w1"))
		assert.False(t, tr.HasActiveMonthly("ana", "w2"))
		assert.Equal(t, 1, tr.ActiveMonthlyCount("ana", "w1"))
	})

	t.Run("chapter access is permanent", func(t *testing.T) {
		assert.True(t, tr.HasChapterAccess("ana", "w1", "ch-7"))
		assert.False(t, tr.HasChapterAccess("ana", "w1", "ch-8"))
	})

	t.Run("open ended monthly grant", func(t *testing.T) {
		tr.GrantSubscription("ben", "w1", models.EntitlementMonthly, models.Dollars(30), nil, "")
		assert.True(t, tr.HasActiveMonthly("ben", "w1"))
	})

	t.Run("expired grant", func(t *testing.T) {
		clock = expires.Add(time.Second)
		assert.False(t, tr.HasActiveMonthly("ana", "w1"))
		assert.True(t, tr.HasChapterAccess("ana", "w1", "ch-7"))
	})

	assert.Len(t, tr.Grants("ana"), 2)
}
