package reservation

import "time"

// ConflictRule identifies which admission rule rejected a candidate.
type ConflictRule string

const (
	// RuleDuplicate: same requester, same role, same slot already requested.
	RuleDuplicate ConflictRule = "DUPLICATE"
	// RuleDoubleRole: same requester holds a different role at the same slot.
	RuleDoubleRole ConflictRule = "DOUBLE_ROLE"
	// RuleDailyLimit: same requester already has a reservation that calendar day.
	RuleDailyLimit ConflictRule = "DAILY_LIMIT"
	// RuleRoleTaken: the role is already requested by someone else for that slot.
	RuleRoleTaken ConflictRule = "ROLE_TAKEN"
)

// HasConflict evaluates candidate against every pending and approved record
// in existing. Rejected records never block. Rules are checked in order and
// the first one to fire wins, so a duplicate reports DUPLICATE rather than
// the daily limit it also trips. A candidate with an unaligned slot time is a
// contract violation: quantization must already have run.
func HasConflict(candidate Reservation, existing []Reservation) (ConflictRule, bool, error) {
	if !Aligned(candidate.SlotTime) {
		return "", false, ErrUnalignedSlot
	}

	live := existing[:0:0]
	for _, r := range existing {
		if r.Status == StatusRejected {
			continue
		}
		live = append(live, r)
	}

	for _, r := range live {
		if r.Name == candidate.Name && r.Role == candidate.Role && r.SlotTime.Equal(candidate.SlotTime) {
			return RuleDuplicate, true, nil
		}
	}
	for _, r := range live {
		if r.Name == candidate.Name && r.Role != candidate.Role && r.SlotTime.Equal(candidate.SlotTime) {
			return RuleDoubleRole, true, nil
		}
	}
	for _, r := range live {
		if r.Name == candidate.Name && sameDay(r.SlotTime, candidate.SlotTime) {
			return RuleDailyLimit, true, nil
		}
	}
	for _, r := range live {
		if r.Role == candidate.Role && r.Name != candidate.Name && r.SlotTime.Equal(candidate.SlotTime) {
			return RuleRoleTaken, true, nil
		}
	}

	// Different requester, different role, same slot is allowed.
	return "", false, nil
}

// roleSlotApproved reports whether an approved record other than excludeID
// already holds (role, slot). Used to re-validate role exclusivity at
// approval time, after competing requests may have been pending together.
func roleSlotApproved(role string, slot time.Time, existing []Reservation, excludeID string) bool {
	for _, r := range existing {
		if r.ID == excludeID || r.Status != StatusApproved {
			continue
		}
		if r.Role == role && r.SlotTime.Equal(slot) {
			return true
		}
	}
	return false
}

// sameDay compares calendar dates only, on the shared UTC clock.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
