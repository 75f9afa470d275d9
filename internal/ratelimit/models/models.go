package models

import (
	"strings"
	"time"
)

// QuotaCategory identifies a rate-limited action type.
type QuotaCategory string

const (
	CategoryLikes      QuotaCategory = "likes"
	CategorySuperLikes QuotaCategory = "super_likes"
	CategoryBoosts     QuotaCategory = "boosts"
)

// IsValid reports whether the category is a known action type.
func (c QuotaCategory) IsValid() bool {
	switch c {
	case CategoryLikes, CategorySuperLikes, CategoryBoosts:
		return true
	}
	return false
}

// CategoryQuota tracks remaining uses of one action type for one user.
// Remaining is an optimistic local estimate between authoritative upstream
// updates. The quota is only enforced while ResetAt is in the future.
type CategoryQuota struct {
	Remaining int
	ResetAt   time.Time
}

// Enforced reports whether an exhausted quota should block at the given time.
func (q CategoryQuota) Enforced(now time.Time) bool {
	return q.Remaining <= 0 && now.Before(q.ResetAt)
}

// QuotaRecord holds all per-user action quotas, created lazily on first use.
type QuotaRecord struct {
	UserID     string
	Likes      CategoryQuota
	SuperLikes CategoryQuota
	Boosts     CategoryQuota
}

// Category returns the quota for the given category.
func (r *QuotaRecord) Category(c QuotaCategory) CategoryQuota {
	switch c {
	case CategoryLikes:
		return r.Likes
	case CategorySuperLikes:
		return r.SuperLikes
	case CategoryBoosts:
		return r.Boosts
	}
	return CategoryQuota{}
}

// FailureRecord tracks validation failures for one (identifier, endpoint) pair.
// Advisory abuse-detection state only; never authoritative for correctness.
type FailureRecord struct {
	Identifier    string
	Endpoint      string
	FailureCount  int
	LastFailureAt time.Time

	// Occurrences holds recent failure times, pruned to the retention window.
	Occurrences []time.Time
}

// WindowSnapshot is a read-only view of the global rate window for admission
// decisions and admin inspection.
type WindowSnapshot struct {
	LimitPerWindow int
	CurrentCount   int
	WindowStart    time.Time
}

// CategoryForPath matches an endpoint path against the quota-bearing action
// patterns. Matching is exact per path segment, never substring containment,
// so a super-like path can never be mistaken for a like path or vice versa.
func CategoryForPath(path string) (QuotaCategory, bool) {
	segs := splitPath(path)
	switch {
	case len(segs) == 2 && segs[0] == "like" && allDigits(segs[1]):
		return CategoryLikes, true
	case len(segs) == 3 && segs[0] == "like" && allDigits(segs[1]) && segs[2] == "super":
		return CategorySuperLikes, true
	case len(segs) == 1 && segs[0] == "boost":
		return CategoryBoosts, true
	}
	return "", false
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
