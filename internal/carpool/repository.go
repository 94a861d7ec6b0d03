package carpool

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the primary-DB persistence boundary for group relations.
type Store interface {
	ActiveGroups(ctx context.Context, userID int64) ([]*Group, error)
	GroupIDsByEnterprise(ctx context.Context, enterpriseIDs []int64) ([]int64, error)
	GroupMemberIDs(ctx context.Context, groupIDs []int64) ([]int64, error)

	SearchingInvitationEdges(ctx context.Context, userIDs []int64) ([]*InvitationEdge, error)
	DeleteInvitationEdge(ctx context.Context, edgeID int64) error
	CountInvitations(ctx context.Context, reservationID int64) (int, error)

	MatchPairs(ctx context.Context, userIDs []int64) ([]*MatchPair, error)
	DeleteMatchStatistic(ctx context.Context, id int64) error

	ReservationCounts(ctx context.Context, reservationID int64) (sent, received, matches int, err error)
	UpsertReservationMatch(ctx context.Context, rm *ReservationMatch) error
}

// Repository implements Store on the primary postgres pool.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new carpool repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ActiveGroups returns groups where the user is a full member or manager and
// the group is live.
func (r *Repository) ActiveGroups(ctx context.Context, userID int64) ([]*Group, error) {
	query := `
		SELECT g.id, g.creator_id, g.name, g.enterprise_id, g.disabled
		FROM duo_group g
		JOIN group_member m ON m.group_id = g.id
		WHERE m.user_id = $1
		  AND m.member_status > $2
		  AND g.disabled = false
	`

	rows, err := r.db.Query(ctx, query, userID, MemberStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		g := &Group{}
		if err := rows.Scan(&g.ID, &g.CreatorID, &g.Name, &g.EnterpriseID, &g.Disabled); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GroupIDsByEnterprise returns live groups belonging to the enterprises.
func (r *Repository) GroupIDsByEnterprise(ctx context.Context, enterpriseIDs []int64) ([]int64, error) {
	if len(enterpriseIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id FROM duo_group
		WHERE enterprise_id = ANY($1) AND disabled = false
	`
	return r.scanIDs(ctx, query, enterpriseIDs)
}

// GroupMemberIDs returns the distinct active members of the given groups.
func (r *Repository) GroupMemberIDs(ctx context.Context, groupIDs []int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT user_id FROM group_member
		WHERE group_id = ANY($1) AND member_status > $2
	`

	rows, err := r.db.Query(ctx, query, groupIDs, MemberStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SearchingInvitationEdges returns in-flight invitation edges where either
// side belongs to one of the given users.
func (r *Repository) SearchingInvitationEdges(ctx context.Context, userIDs []int64) ([]*InvitationEdge, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT dr.id, dr.reservation_id, inviter.user_id, dr.offer_id, invited.user_id
		FROM duo_reservation dr
		JOIN reservation inviter ON inviter.id = dr.reservation_id
		JOIN reservation invited ON invited.id = dr.offer_id
		WHERE inviter.status = $1
		  AND (inviter.user_id = ANY($2) OR invited.user_id = ANY($2))
	`

	rows, err := r.db.Query(ctx, query, ReservationStatusSearching, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*InvitationEdge
	for rows.Next() {
		e := &InvitationEdge{}
		err := rows.Scan(&e.EdgeID, &e.InviterReservationID, &e.InviterUserID,
			&e.InvitedReservationID, &e.InvitedUserID)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (r *Repository) DeleteInvitationEdge(ctx context.Context, edgeID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM duo_reservation WHERE id = $1`, edgeID)
	return err
}

func (r *Repository) CountInvitations(ctx context.Context, reservationID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM duo_reservation
		WHERE reservation_id = $1 OR offer_id = $1
	`
	var count int
	err := r.db.QueryRow(ctx, query, reservationID).Scan(&count)
	return count, err
}

// MatchPairs returns matches where either side belongs to the given users.
func (r *Repository) MatchPairs(ctx context.Context, userIDs []int64) ([]*MatchPair, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ms.id, ms.reservation_id, ms.match_reservation_id, a.user_id, b.user_id
		FROM match_statistic ms
		JOIN reservation a ON a.id = ms.reservation_id
		JOIN reservation b ON b.id = ms.match_reservation_id
		WHERE a.user_id = ANY($1) OR b.user_id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*MatchPair
	for rows.Next() {
		p := &MatchPair{}
		err := rows.Scan(&p.ID, &p.ReservationID, &p.MatchReservationID, &p.UserID, &p.MatchUserID)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func (r *Repository) DeleteMatchStatistic(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM match_statistic WHERE id = $1`, id)
	return err
}

// ReservationCounts recomputes the raw aggregates from surviving rows.
func (r *Repository) ReservationCounts(ctx context.Context, reservationID int64) (int, int, int, error) {
	var sent, received, matches int

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM duo_reservation WHERE reservation_id = $1`, reservationID).Scan(&sent)
	if err != nil {
		return 0, 0, 0, err
	}
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM duo_reservation WHERE offer_id = $1`, reservationID).Scan(&received)
	if err != nil {
		return 0, 0, 0, err
	}
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM match_statistic WHERE reservation_id = $1 OR match_reservation_id = $1`,
		reservationID).Scan(&matches)
	if err != nil {
		return 0, 0, 0, err
	}

	return sent, received, matches, nil
}

func (r *Repository) UpsertReservationMatch(ctx context.Context, rm *ReservationMatch) error {
	query := `
		INSERT INTO reservation_match (reservation_id, invite_sent, invite_received, matches, modified_on)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (reservation_id) DO UPDATE
		SET invite_sent = EXCLUDED.invite_sent,
		    invite_received = EXCLUDED.invite_received,
		    matches = EXCLUDED.matches,
		    modified_on = NOW()
	`
	_, err := r.db.Exec(ctx, query, rm.ReservationID, rm.InviteSent, rm.InviteReceived, rm.Matches)
	return err
}

func (r *Repository) scanIDs(ctx context.Context, query string, arg interface{}) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
