package carpool

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MegaStore resolves enterprise federation in the secondary database.
type MegaStore interface {
	// PeerEnterprises resolves each enterprise to its mega cluster and
	// returns the union of all member enterprise ids.
	PeerEnterprises(ctx context.Context, enterpriseIDs []int64) ([]int64, error)
}

// MegaRepository implements MegaStore on the mega-carpool postgres pool.
type MegaRepository struct {
	db *pgxpool.Pool
}

// NewMegaRepository creates a new mega-carpool repository
func NewMegaRepository(db *pgxpool.Pool) *MegaRepository {
	return &MegaRepository{db: db}
}

// PeerEnterprises joins the org mapping against itself: every org sharing a
// mega cluster with one of the inputs is a peer.
func (r *MegaRepository) PeerEnterprises(ctx context.Context, enterpriseIDs []int64) ([]int64, error) {
	if len(enterpriseIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT peer.org_id
		FROM mega_carpool_org own
		JOIN mega_carpool_org peer ON peer.mega_id = own.mega_id
		WHERE own.org_id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, enterpriseIDs)
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
