package ledger

// Activity types partition into credits (delta must be positive), debits
// (delta must be negative) and bidirectional adjustments. The partitions are
// part of the client contract; keep this table authoritative.
const (
	ActivityAdjustment    = 1
	ActivityIncentive     = 6 // survey rewards and other incentives
	ActivityCarpoolFee    = 8
	ActivityIntoEscrow    = 9
	ActivityFromEscrow    = 10 // also used for auto-refill credits
	ActivityPurchaseDebit = 11
)

var creditActivities = map[int]bool{
	2: true, 4: true, 5: true, 6: true, 7: true,
	10: true, 12: true, 18: true, 24: true,
}

var debitActivities = map[int]bool{
	3: true, 8: true, 9: true, 11: true,
	19: true, 22: true, 25: true, 26: true,
}

// Escrow detail activities that debit the user wallet into escrow.
var escrowIncreaseActivities = map[int]bool{
	1: true, 2: true, 3: true, 4: true, 5: true, 12: true, 24: true,
}

// IsCredit reports whether the activity type requires a positive delta.
func IsCredit(activityType int) bool {
	return creditActivities[activityType]
}

// IsDebit reports whether the activity type requires a negative delta.
func IsDebit(activityType int) bool {
	return debitActivities[activityType]
}

// ValidateSign checks the delta sign against the activity partition.
// Activities outside both partitions are bidirectional adjustments.
func ValidateSign(activityType int, delta float64) bool {
	switch {
	case IsCredit(activityType):
		return delta > 0
	case IsDebit(activityType):
		return delta < 0
	default:
		return true
	}
}

// EscrowIncreases reports whether an escrow detail activity moves funds from
// the user wallet into escrow.
func EscrowIncreases(activityType int) bool {
	return escrowIncreaseActivities[activityType]
}
