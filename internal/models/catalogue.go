package models

// Work is the catalogue metadata the engine needs about a title.
type Work struct {
	ID           string `json:"id" validate:"required"`
	CreatorID    string `json:"creatorId" validate:"required"`
	Title        string `json:"title" validate:"required"`
	MonthlyPrice Amount `json:"monthlyPrice" validate:"gte=0"`
	ChapterPrice Amount `json:"chapterPrice" validate:"gte=0"`
	RevenueTotal Amount `json:"revenueTotal"`
}

// PriceFor returns the canonical price of an entitlement kind.
func (w Work) PriceFor(kind EntitlementKind) (Amount, bool) {
	switch kind {
	case EntitlementMonthly:
		return w.MonthlyPrice, true
	case EntitlementChapter:
		return w.ChapterPrice, true
	}
	return 0, false
}

// Identity is what the identity provider knows about a user.
type Identity struct {
	UserID            string `json:"userId" validate:"required"`
	Role              Role   `json:"role" validate:"required,oneof=regular creator"`
	IsApprovedCreator bool   `json:"isApprovedCreator"`
}
