package services_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicspot/apperr"
	"civicspot/models"
	"civicspot/services"
	mock_services "civicspot/services/mocks"
)

func TestAdminSetup_MakeAdmin(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	users := mock_services.NewMockUserRepository(ctrl)
	u := &models.User{ID: primitive.NewObjectID(), Name: "Asha", Email: "asha@example.com", Role: models.RoleUser}

	users.EXPECT().FindByEmail(gomock.Any(), "asha@example.com").Return(u, nil)
	users.EXPECT().SetRole(gomock.Any(), u.ID, models.RoleAdmin).Return(nil)

	got, err := services.NewAdminSetup(users).MakeAdmin(context.Background(), models.MakeAdminInput{Email: "  Asha@Example.com "})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)
}

func TestAdminSetup_MakeAdmin_AlreadyAdmin(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	users := mock_services.NewMockUserRepository(ctrl)
	u := &models.User{ID: primitive.NewObjectID(), Email: "root@example.com", Role: models.RoleAdmin}
	users.EXPECT().FindByEmail(gomock.Any(), "root@example.com").Return(u, nil)

	got, err := services.NewAdminSetup(users).MakeAdmin(context.Background(), models.MakeAdminInput{Email: "root@example.com"})
	require.NoError(t, err)
	assert.Same(t, u, got)
}

func TestAdminSetup_MakeAdmin_InvalidEmail(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	users := mock_services.NewMockUserRepository(ctrl)

	_, err := services.NewAdminSetup(users).MakeAdmin(context.Background(), models.MakeAdminInput{Email: "not-an-email"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
