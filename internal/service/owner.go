package service

import (
	"context"
	"errors"
	"strings"

	"github.com/fuelsync/fuelsync/internal/currency"
	"github.com/fuelsync/fuelsync/internal/model"
	"github.com/fuelsync/fuelsync/internal/repository"
)

const maxNameLength = 100

// ProfileUpdate holds the profile fields a caller may change. Nil fields are left as they are.
type ProfileUpdate struct {
	Name     *string
	Currency *string
}

// SettingsUpdate holds the settings fields a caller may change.
type SettingsUpdate struct {
	Units             *model.Units
	DateFormat        *string
	Notifications     *bool
	PreferredCurrency *string
}

// GetProfile returns the owner's profile, creating it on first access.
func (s *Service) GetProfile(ctx context.Context, ownerID, email string) (*model.Profile, error) {
	p, err := s.repo.GetProfile(ctx, ownerID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError(err, ErrUpstreamUnavailable)
	}

	p = model.NewProfile(ownerID, email, s.clock())
	err = s.repo.CreateProfile(ctx, p)
	if errors.Is(err, repository.ErrAlreadyExists) {
		// Lost a race with a concurrent first request.
		p, err = s.repo.GetProfile(ctx, ownerID)
		return p, storeError(err, ErrUpstreamUnavailable)
	}
	if err != nil {
		return nil, storeError(err, ErrUpstreamUnavailable)
	}
	s.metrics.IncEntityCreated("profile")
	s.logger.InfoContext(ctx, "profile_created", "owner_id", ownerID)
	return p, nil
}

// UpdateProfile applies in to the owner's profile.
func (s *Service) UpdateProfile(ctx context.Context, ownerID, email string, in ProfileUpdate) (*model.Profile, error) {
	set := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if len(name) > maxNameLength {
			return nil, invalid("name", "too long")
		}
		set["name"] = name
	}
	if in.Currency != nil {
		code, err := currencyCode("currency", *in.Currency)
		if err != nil {
			return nil, err
		}
		set["currency"] = code
	}
	if len(set) == 0 {
		return nil, invalid("body", "no updatable fields")
	}

	if _, err := s.GetProfile(ctx, ownerID, email); err != nil {
		return nil, err
	}
	set["updatedAt"] = stamp(s.clock())
	p, err := s.repo.UpdateProfile(ctx, ownerID, set)
	if err != nil {
		return nil, storeError(err, ErrUpstreamUnavailable)
	}
	s.metrics.IncEntityUpdated("profile")
	return p, nil
}

// GetSettings returns the owner's settings, creating defaults on first access.
func (s *Service) GetSettings(ctx context.Context, ownerID string) (*model.Settings, error) {
	st, err := s.repo.GetSettings(ctx, ownerID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError(err, ErrUpstreamUnavailable)
	}

	st = model.NewSettings(ownerID, s.clock())
	err = s.repo.CreateSettings(ctx, st)
	if errors.Is(err, repository.ErrAlreadyExists) {
		st, err = s.repo.GetSettings(ctx, ownerID)
		return st, storeError(err, ErrUpstreamUnavailable)
	}
	if err != nil {
		return nil, storeError(err, ErrUpstreamUnavailable)
	}
	s.metrics.IncEntityCreated("settings")
	s.logger.InfoContext(ctx, "settings_created", "owner_id", ownerID)
	return st, nil
}

// UpdateSettings applies in to the owner's settings.
func (s *Service) UpdateSettings(ctx context.Context, ownerID string, in SettingsUpdate) (*model.Settings, error) {
	set := map[string]any{}
	if in.Units != nil {
		if !in.Units.IsValid() {
			return nil, invalid("units", "must be imperial or metric")
		}
		set["units"] = string(*in.Units)
	}
	if in.DateFormat != nil {
		f := strings.TrimSpace(*in.DateFormat)
		if f == "" || len(f) > 20 {
			return nil, invalid("dateFormat", "must be 1-20 characters")
		}
		set["dateFormat"] = f
	}
	if in.Notifications != nil {
		set["notifications"] = *in.Notifications
	}
	if in.PreferredCurrency != nil {
		code, err := currencyCode("preferredCurrency", *in.PreferredCurrency)
		if err != nil {
			return nil, err
		}
		set["preferredCurrency"] = code
	}
	if len(set) == 0 {
		return nil, invalid("body", "no updatable fields")
	}

	if _, err := s.GetSettings(ctx, ownerID); err != nil {
		return nil, err
	}
	set["updatedAt"] = stamp(s.clock())
	st, err := s.repo.UpdateSettings(ctx, ownerID, set)
	if err != nil {
		return nil, storeError(err, ErrUpstreamUnavailable)
	}
	s.metrics.IncEntityUpdated("settings")
	return st, nil
}

func currencyCode(field, code string) (string, error) {
	c := currency.NormalizeCode(code)
	if !currency.ValidCode(c) {
		return "", invalid(field, "must be a three-letter currency code")
	}
	return c, nil
}
