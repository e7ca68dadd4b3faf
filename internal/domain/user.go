package domain

import (
	"time"

	"github.com/google/uuid"
)

// MembershipTier represents a user's membership level
type MembershipTier string

const (
	TierBasic MembershipTier = "BASIC"
	TierPro   MembershipTier = "PRO"
	TierElite MembershipTier = "ELITE"
)

// MembershipTiers lists all tiers in ascending order.
var MembershipTiers = []MembershipTier{TierBasic, TierPro, TierElite}

// tierRank orders tiers for upgrade and eligibility checks.
var tierRank = map[MembershipTier]int{
	TierBasic: 0,
	TierPro:   1,
	TierElite: 2,
}

// AtLeast reports whether the tier is at or above the given tier.
func (t MembershipTier) AtLeast(min MembershipTier) bool {
	return tierRank[t] >= tierRank[min]
}

// Valid reports whether the tier is a known membership tier.
func (t MembershipTier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// User represents a user in the domain layer. ReferrerID links the referral
// chain walked by the commission distributor: a user's upline is their
// referrer, then the referrer's referrer.
type User struct {
	ID         uuid.UUID
	Username   string
	Tier       MembershipTier
	ReferrerID *uuid.UUID
	CreatedAt  time.Time
}
