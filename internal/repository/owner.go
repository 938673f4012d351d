package repository

import (
	"context"

	"github.com/fuelsync/fuelsync/internal/keys"
	"github.com/fuelsync/fuelsync/internal/kv"
	"github.com/fuelsync/fuelsync/internal/model"
)

// GetProfile returns an owner's profile or ErrNotFound.
func (r *Repository) GetProfile(ctx context.Context, ownerID string) (*model.Profile, error) {
	return get[model.Profile](ctx, r.store, keys.Owner(ownerID, keys.Profile))
}

// CreateProfile stores a new profile. Returns ErrAlreadyExists if one is present.
func (r *Repository) CreateProfile(ctx context.Context, p *model.Profile) error {
	return put(ctx, r.store, keys.Owner(p.OwnerID, keys.Profile), p, kv.MustNotExist)
}

// UpdateProfile sets attributes on an existing profile.
func (r *Repository) UpdateProfile(ctx context.Context, ownerID string, set map[string]any) (*model.Profile, error) {
	return update[model.Profile](ctx, r.store, keys.Owner(ownerID, keys.Profile), set)
}

// GetSettings returns an owner's settings or ErrNotFound.
func (r *Repository) GetSettings(ctx context.Context, ownerID string) (*model.Settings, error) {
	return get[model.Settings](ctx, r.store, keys.Owner(ownerID, keys.Settings))
}

// CreateSettings stores new settings. Returns ErrAlreadyExists if present.
func (r *Repository) CreateSettings(ctx context.Context, s *model.Settings) error {
	return put(ctx, r.store, keys.Owner(s.OwnerID, keys.Settings), s, kv.MustNotExist)
}

// UpdateSettings sets attributes on existing settings.
func (r *Repository) UpdateSettings(ctx context.Context, ownerID string, set map[string]any) (*model.Settings, error) {
	return update[model.Settings](ctx, r.store, keys.Owner(ownerID, keys.Settings), set)
}
