package events

import "github.com/p8fs/p8fs/internal/bytesize"

// Tier is the size band that determines which worker pool processes an event.
type Tier string

const (
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

// Tier boundaries. Binary units: a size of exactly 100 MiB is medium and a
// size of exactly 1 GiB is large.
const (
	SmallMaxBytes  = int64(100 * bytesize.MiB) // exclusive upper bound for small
	MediumMaxBytes = int64(1 * bytesize.GiB)   // exclusive upper bound for medium
)

// ClassifyTier maps a declared byte size onto its tier.
func ClassifyTier(size int64) Tier {
	switch {
	case size < SmallMaxBytes:
		return TierSmall
	case size < MediumMaxBytes:
		return TierMedium
	default:
		return TierLarge
	}
}

// Tier returns the tier the event routes to.
func (e *StorageEvent) Tier() Tier {
	return ClassifyTier(e.Size)
}

// ParseTier validates a tier name from CLI flags or config.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierSmall, TierMedium, TierLarge:
		return Tier(s), true
	}
	return "", false
}
