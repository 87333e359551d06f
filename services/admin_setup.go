package services

import (
	"context"
	"strings"

	"github.com/apex/log"

	"civicspot/models"
)

// AdminSetup bootstraps the first administrators. It is only mounted when
// ADMIN_SETUP_ENABLED is set.
type AdminSetup struct {
	users UserRepository
}

func NewAdminSetup(users UserRepository) *AdminSetup {
	return &AdminSetup{users: users}
}

// MakeAdmin promotes the user with the given email. Promoting an existing
// admin is a no-op.
func (a *AdminSetup) MakeAdmin(ctx context.Context, in models.MakeAdminInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := models.Validate(in); err != nil {
		return nil, err
	}

	user, err := a.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleAdmin {
		return user, nil
	}
	if err := a.users.SetRole(ctx, user.ID, models.RoleAdmin); err != nil {
		return nil, err
	}
	user.Role = models.RoleAdmin
	log.WithField("user_id", user.ID.Hex()).Warn("user promoted to admin through setup route")
	return user, nil
}

func (a *AdminSetup) ListUsers(ctx context.Context) ([]models.User, error) {
	return a.users.List(ctx)
}
