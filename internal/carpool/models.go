package carpool

import "time"

// GroupMember member_status values. Members at pending or below are not
// active peers.
const (
	MemberStatusNone       = 0
	MemberStatusPending    = 1
	MemberStatusMember     = 2
	MemberStatusManagement = 3
)

// Reservation roles.
const (
	RoleDriver = 1
	RoleRider  = 2
)

// ReservationStatusSearching marks in-flight reservations still matching.
const ReservationStatusSearching = "SEARCHING"

// Group is one carpool group. EnterpriseID links it into the mega-carpool
// federation when set.
type Group struct {
	ID           int64  `json:"id"`
	CreatorID    int64  `json:"creator_id"`
	Name         string `json:"name"`
	EnterpriseID *int64 `json:"enterprise_id,omitempty"`
	Disabled     bool   `json:"disabled"`
}

// InvitationEdge is one DuoReservation row joined with both sides' users.
type InvitationEdge struct {
	EdgeID               int64 `json:"id"`
	InviterReservationID int64 `json:"reservation_id"`
	InviterUserID        int64 `json:"inviter_user_id"`
	InvitedReservationID int64 `json:"offer_id"`
	InvitedUserID        int64 `json:"invited_user_id"`
}

// MatchPair is one MatchStatistic row joined with both sides' users.
type MatchPair struct {
	ID                 int64 `json:"id"`
	ReservationID      int64 `json:"reservation_id"`
	MatchReservationID int64 `json:"match_reservation_id"`
	UserID             int64 `json:"user_id"`
	MatchUserID        int64 `json:"match_user_id"`
}

// ReservationMatch is the per-reservation aggregate row.
type ReservationMatch struct {
	ReservationID  int64     `json:"reservation_id"`
	InviteSent     int       `json:"invite_sent"`
	InviteReceived int       `json:"invite_received"`
	Matches        int       `json:"matches"`
	ModifiedOn     time.Time `json:"modified_on"`
}
