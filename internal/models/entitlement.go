package models

import "time"

// EntitlementKind is the type of access a user paid for.
type EntitlementKind string

const (
	EntitlementMonthly EntitlementKind = "monthly"
	EntitlementChapter EntitlementKind = "chapter"
)

// EntitlementRecord is a single access grant for a (user, work) pair.
type EntitlementRecord struct {
	UserID    string          `json:"userId"`
	WorkID    string          `json:"workId"`
	Kind      EntitlementKind `json:"kind"`
	ChapterID string          `json:"chapterId,omitempty"`
	Price     Amount          `json:"price"`
	GrantedAt time.Time       `json:"grantedAt"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}

// ActiveAt reports whether a monthly grant is in force at t.
func (e EntitlementRecord) ActiveAt(t time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(t)
}

// OpportunityStats summarises a user's progress toward investment opportunities.
type OpportunityStats struct {
	Subscriptions int `json:"subscriptions"`
	Donations     int `json:"donations"`
	Combined      int `json:"combinedActionCount"`
	Consumed      int `json:"opportunitiesConsumed"`
	Available     int `json:"investmentOpportunitiesAvailable"`
}
