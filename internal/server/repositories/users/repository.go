package users

import (
	"context"

	"github.com/dmitrijs2005/userhub/internal/server/models"
)

// Repository is the credential store: one row per user.
// Lookups return common.ErrorNotFound when no row matches.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
	SetProfilePhoto(ctx context.Context, id string, photo *models.ProfilePhoto) error
	Delete(ctx context.Context, id string) error
	ListPhotoIDs(ctx context.Context) ([]string, error)
}
