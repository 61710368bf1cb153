package account

import "time"

// Status is the operational status of a sender account.
//
// Rules:
//   - Status is derived from the health score unless pinned.
//   - BLOCKED is sticky: health recomputation never clears it. Only an
//     explicit SetStatus call can move an account out of BLOCKED.
type Status string

const (
	StatusHealthy    Status = "HEALTHY"
	StatusWarn       Status = "WARN"
	StatusRestricted Status = "RESTRICTED"
	StatusBlocked    Status = "BLOCKED"
	StatusUnknown    Status = "UNKNOWN"
)

// Quality rating tiers reported by the messaging provider.
// They can override the score-derived status.
const (
	TierGreen  = "GREEN"
	TierYellow = "YELLOW"
	TierRed    = "RED"
)

const (
	// MinScore and MaxScore bound the health score.
	MinScore = 0
	MaxScore = 100

	// MinHealthyScore is the minimum score (inclusive) for an account to
	// be considered during send-account selection.
	MinHealthyScore = 30

	// penaltyScoreCeiling caps the score when an account is explicitly
	// moved into BLOCKED or RESTRICTED.
	penaltyScoreCeiling = 20
)

// Account is a sender identity with an independent health reputation.
//
// Invariants:
//   - HealthScore stays within [MinScore, MaxScore].
//   - UpdatedAt/LastHealthUpdateAt change only when score or status actually
//     change; no-op updates must not bump timestamps.
type Account struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	DisplayName string `json:"display_name,omitempty"`

	HealthScore int    `json:"health_score"`
	Status      Status `json:"status"`
	IsActive    bool   `json:"is_active"`

	// QualityRatingTier is the last tier signal received from the
	// provider (GREEN/YELLOW/RED), empty when none was ever reported.
	QualityRatingTier string `json:"quality_rating_tier,omitempty"`

	// MessagingLimitTier is informational (provider messaging volume tier).
	MessagingLimitTier string `json:"messaging_limit_tier,omitempty"`

	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	LastHealthUpdateAt time.Time `json:"last_health_update_at"`
}

// New creates a fresh account: full health, HEALTHY, active.
func New(id, phoneNumber string, now time.Time) *Account {
	now = now.UTC()
	return &Account{
		ID:                 id,
		PhoneNumber:        phoneNumber,
		HealthScore:        MaxScore,
		Status:             StatusHealthy,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
		LastHealthUpdateAt: now,
	}
}

// Rehydrate rebuilds an account from a fully-specified storage row.
// No defaulting happens here; storage is the source of truth.
func Rehydrate(a Account) *Account {
	out := a
	return &out
}

// StatusForScore maps a health score to its derived status.
func StatusForScore(score int) Status {
	switch {
	case score <= MinHealthyScore:
		return StatusRestricted
	case score < 70:
		return StatusWarn
	default:
		return StatusHealthy
	}
}

// IsHealthyForSending reports whether the account may be used for sends.
func (a *Account) IsHealthyForSending() bool {
	return a.IsActive && a.Status != StatusBlocked && a.Status != StatusRestricted
}

// SetActive toggles the account in or out of the selection pool.
func (a *Account) SetActive(active bool, now time.Time) {
	if a.IsActive == active {
		return
	}
	a.IsActive = active
	a.UpdatedAt = now.UTC()
}

// SetStatus pins the status explicitly. This is the only path that can
// clear BLOCKED. Moving into BLOCKED or RESTRICTED from a non-BLOCKED
// state caps the score at penaltyScoreCeiling.
func (a *Account) SetStatus(newStatus Status, now time.Time) {
	if a.Status == newStatus {
		return
	}
	oldStatus := a.Status
	a.Status = newStatus
	a.UpdatedAt = now.UTC()

	if (newStatus == StatusBlocked || newStatus == StatusRestricted) && oldStatus != StatusBlocked {
		if a.HealthScore > penaltyScoreCeiling {
			a.HealthScore = penaltyScoreCeiling
		}
	}
}

// UpdateHealth applies a score delta and recomputes the derived status.
// qualityTier, when non-empty, is the freshly reported provider tier and
// participates in the status computation. A BLOCKED account keeps its
// status (sticky) but still tracks the score.
func (a *Account) UpdateHealth(delta int, qualityTier string, now time.Time) {
	prevScore := a.HealthScore
	prevStatus := a.Status

	a.HealthScore = ClampScore(a.HealthScore + delta)

	calculated := StatusForScore(a.HealthScore)
	switch {
	case qualityTier == TierRed:
		calculated = StatusRestricted
	case qualityTier == TierYellow && calculated == StatusHealthy:
		calculated = StatusWarn
	case qualityTier == TierGreen && a.HealthScore >= 70:
		calculated = StatusHealthy
	}

	if a.Status != StatusBlocked && a.Status != calculated {
		a.Status = calculated
	}

	if a.HealthScore != prevScore || a.Status != prevStatus {
		ts := now.UTC()
		a.LastHealthUpdateAt = ts
		a.UpdatedAt = ts
	}
}

// ClampScore bounds a raw score to [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
