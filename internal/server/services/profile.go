package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/userhub/internal/common"
	"github.com/dmitrijs2005/userhub/internal/cryptox"
	"github.com/dmitrijs2005/userhub/internal/filex"
	"github.com/dmitrijs2005/userhub/internal/logging"
	"github.com/dmitrijs2005/userhub/internal/server/config"
	"github.com/dmitrijs2005/userhub/internal/server/imagehost"
	"github.com/dmitrijs2005/userhub/internal/server/models"
	"github.com/dmitrijs2005/userhub/internal/server/repositories/repomanager"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// UpdateInput is a partial profile update. Omitted fields are left as they
// are; a JSON null sets the field to its empty value.
type UpdateInput struct {
	UserName models.Optional[string] `json:"username"`
	Password models.Optional[string] `json:"password"`
	Bio      models.Optional[string] `json:"bio"`
}

// PhotoUpload is an incoming profile photo.
type PhotoUpload struct {
	Body io.Reader
}

// ProfileService implements profile reads, updates, deletion and the
// profile photo replace flow.
type ProfileService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	hasher       cryptox.PasswordHasher
	images       imagehost.Host
	uploadDir    string
	maxPhotoSize int64
	logger       logging.Logger
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *sql.DB, m repomanager.RepositoryManager, h cryptox.PasswordHasher, images imagehost.Host, cfg *config.Config, l logging.Logger) *ProfileService {
	return &ProfileService{
		db:           db,
		repomanager:  m,
		hasher:       h,
		images:       images,
		uploadDir:    cfg.UploadDir,
		maxPhotoSize: cfg.MaxPhotoSize,
		logger:       l.With("module", "profile_service"),
	}
}

// isUserID reports whether id can name a stored user.
func isUserID(id string) bool {
	return uuid.Validate(id) == nil
}

// ListAll returns every user. Access is restricted to admins by the caller.
func (s *ProfileService) ListAll(ctx context.Context) ([]*models.User, error) {
	users, err := s.repomanager.Users(s.db).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return users, nil
}

// Count returns the number of users.
func (s *ProfileService) Count(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Users(s.db).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("error counting users: %w", err)
	}
	return n, nil
}

// GetByID returns one user or common.ErrorNotFound.
func (s *ProfileService) GetByID(ctx context.Context, id string) (*models.User, error) {
	if !isUserID(id) {
		return nil, common.ErrorNotFound
	}
	user, err := s.repomanager.Users(s.db).FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	return user, nil
}

// Update applies the present fields of in to the profile id. The owner or
// an admin may update. A present password is hashed before it is stored.
func (s *ProfileService) Update(ctx context.Context, p models.Principal, id string, in UpdateInput) (*models.User, error) {
	if !p.CanModify(id) {
		return nil, common.ErrorForbidden
	}

	if in.UserName.Set {
		if err := validateField("username", in.UserName.Value, "required,"+userNameRules); err != nil {
			return nil, err
		}
	}
	if in.Password.Set {
		if err := validateField("password", in.Password.Value, "required,"+passwordRules); err != nil {
			return nil, err
		}
	}
	if in.Bio.Set {
		if err := validateField("bio", in.Bio.Value, bioRules); err != nil {
			return nil, err
		}
	}

	if !isUserID(id) {
		return nil, common.ErrorNotFound
	}

	patch := models.UserPatch{UserName: in.UserName, Bio: in.Bio}
	if in.Password.Set {
		hash, err := s.hasher.Hash(in.Password.Value)
		if err != nil {
			if errors.Is(err, cryptox.ErrPasswordTooLong) {
				return nil, common.NewValidationError("password", "password is too long")
			}
			return nil, fmt.Errorf("%w: error hashing password: %w", common.ErrorInternal, err)
		}
		patch.PasswordHash = models.Some(hash)
	}

	user, err := s.repomanager.Users(s.db).Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("error updating user: %w", err)
	}
	return user, nil
}

// UploadProfilePhoto replaces the caller's profile photo.
//
// The payload is staged to disk and checked before anything else happens.
// The new photo is uploaded and committed first; only then is the previous
// hosted object removed, and a failure there is logged and ignored. If the
// commit fails the new object is removed again and the old one stays.
func (s *ProfileService) UploadProfilePhoto(ctx context.Context, p models.Principal, image *PhotoUpload) (*models.ProfilePhoto, error) {
	if image == nil || image.Body == nil {
		return nil, common.NewValidationError("image", "no image provided")
	}

	staged, err := filex.Stage(s.uploadDir, image.Body, s.maxPhotoSize)
	if err != nil {
		if errors.Is(err, filex.ErrTooLarge) {
			return nil, common.NewValidationError("image", fmt.Sprintf("image must not exceed %d bytes", s.maxPhotoSize))
		}
		return nil, fmt.Errorf("error staging image: %w", err)
	}
	defer func() {
		if err := staged.Close(); err != nil {
			s.logger.Warn(ctx, "failed to remove staged image", "error", err)
		}
	}()

	if staged.Size == 0 {
		return nil, common.NewValidationError("image", "no image provided")
	}

	contentType, err := detectContentType(staged)
	if err != nil {
		return nil, fmt.Errorf("error reading image: %w", err)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, common.NewValidationError("image", "only image files are allowed")
	}

	if !isUserID(p.UserID) {
		return nil, common.ErrorNotFound
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	photo, err := s.images.Upload(ctx, staged, staged.Size, contentType)
	if err != nil {
		return nil, fmt.Errorf("error uploading image: %w", err)
	}

	if err := repo.SetProfilePhoto(ctx, user.ID, photo); err != nil {
		if rmErr := s.images.Remove(ctx, photo.ExternalID); rmErr != nil {
			s.logger.Error(ctx, "failed to remove uploaded photo", "external_id", photo.ExternalID, "error", rmErr)
		}
		return nil, fmt.Errorf("error saving profile photo: %w", err)
	}

	if user.HasProfilePhoto() {
		if err := s.images.Remove(ctx, user.ProfilePhoto.ExternalID); err != nil {
			s.logger.Warn(ctx, "failed to remove previous photo", "external_id", user.ProfilePhoto.ExternalID, "error", err)
		}
	}

	s.logger.Info(ctx, "profile photo uploaded", "user_id", user.ID, "external_id", photo.ExternalID)
	return photo, nil
}

// DeleteProfile removes the hosted photo, if any, and then the user record.
// The owner or an admin may delete. When the photo cannot be removed the
// record is kept and the error wraps common.ErrorExternalService.
func (s *ProfileService) DeleteProfile(ctx context.Context, p models.Principal, id string) error {
	if !p.CanModify(id) {
		return common.ErrorForbidden
	}
	if !isUserID(id) {
		return common.ErrorNotFound
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("error searching user: %w", err)
	}

	if user.HasProfilePhoto() {
		if err := s.images.Remove(ctx, user.ProfilePhoto.ExternalID); err != nil {
			return fmt.Errorf("%w: error removing profile photo: %w", common.ErrorExternalService, err)
		}
	}

	if err := repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}

	s.logger.Info(ctx, "user deleted", "user_id", id, "by", p.UserID)
	return nil
}

// detectContentType sniffs the payload and rewinds it.
func detectContentType(f io.ReadSeeker) (string, error) {
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mtype.String(), nil
}
