package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
)

// VenueRepository handles persistence for venues.
type VenueRepository struct {
	db *pgxpool.Pool
}

// NewVenueRepository constructs a VenueRepository.
func NewVenueRepository(db *pgxpool.Pool) *VenueRepository {
	return &VenueRepository{db: db}
}

// Create inserts a venue. The caller assigns ID and CreatedAt.
func (r *VenueRepository) Create(ctx context.Context, v *model.Venue) error {
	closures := v.Closures
	if closures == nil {
		closures = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO venues (id, owner_id, name, lat, lng, hours, base_price, modifiers, avg_rating, closures, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		v.ID, v.OwnerID, v.Name, v.Location.Lat, v.Location.Lng, v.Hours,
		v.Pricing.BasePrice, v.Pricing.Modifiers, v.AvgRating, closures, v.IsActive, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert venue: %w", err)
	}
	return nil
}

// GetByID returns a single venue or ErrNotFound.
func (r *VenueRepository) GetByID(ctx context.Context, id string) (*model.Venue, error) {
	var v model.Venue
	err := r.db.QueryRow(ctx,
		`SELECT id::text, owner_id, name, lat, lng, hours, base_price, modifiers, avg_rating, closures, is_active, created_at
		 FROM venues WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.OwnerID, &v.Name, &v.Location.Lat, &v.Location.Lng, &v.Hours,
		&v.Pricing.BasePrice, &v.Pricing.Modifiers, &v.AvgRating, &v.Closures, &v.IsActive, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get venue: %w", err)
	}
	return &v, nil
}
