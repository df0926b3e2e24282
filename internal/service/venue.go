package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/apperr"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
)

// CreateVenue registers a venue. Owners create venues for themselves; admins
// may create one for any owner.
func (s *BookingService) CreateVenue(ctx context.Context, actor model.Actor, req model.CreateVenueRequest) (*model.Venue, error) {
	switch actor.Role {
	case model.RoleAdmin:
		if req.OwnerID == "" {
			req.OwnerID = actor.UserID
		}
	case model.RoleOwner:
		if req.OwnerID != "" && req.OwnerID != actor.UserID {
			return nil, apperr.Forbiddenf("owners can only create their own venues")
		}
		req.OwnerID = actor.UserID
	default:
		return nil, apperr.Forbiddenf("only venue owners can create venues")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, apperr.Validationf("name is required")
	}
	if req.Pricing.BasePrice < 0 {
		return nil, apperr.Validationf("base_price cannot be negative")
	}
	if r := req.AvgRating; r != nil && (*r < 0 || *r > 5) {
		return nil, apperr.Validationf("avg_rating must be between 0 and 5")
	}
	for _, c := range req.Closures {
		if _, err := model.ParseDate(c); err != nil {
			return nil, apperr.Validationf("closure %v", err)
		}
	}

	v := &model.Venue{
		ID:        uuid.New().String(),
		OwnerID:   req.OwnerID,
		Name:      req.Name,
		Location:  req.Location,
		Hours:     req.Hours,
		Pricing:   req.Pricing,
		AvgRating: req.AvgRating,
		Closures:  req.Closures,
		IsActive:  req.IsActive,
		CreatedAt: s.now(),
	}
	if v.Closures == nil {
		v.Closures = []string{}
	}
	if err := v.Bookable(); err != nil {
		return nil, apperr.Validationf("%v", err)
	}

	if err := s.venues.Create(ctx, v); err != nil {
		return nil, storeErr(err, "venue")
	}
	s.log.Info("venue created", "venue_id", v.ID, "owner_id", v.OwnerID, "name", v.Name)
	return v, nil
}

// GetVenue returns a venue by id.
func (s *BookingService) GetVenue(ctx context.Context, id string) (*model.Venue, error) {
	if err := checkID(id, "venue"); err != nil {
		return nil, err
	}
	v, err := s.venues.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "venue")
	}
	return v, nil
}
