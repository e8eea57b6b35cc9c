// Package services contains server-side business logic. This file implements
// AuthService, which handles registration and login.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/userhub/internal/common"
	"github.com/dmitrijs2005/userhub/internal/cryptox"
	"github.com/dmitrijs2005/userhub/internal/dbx"
	"github.com/dmitrijs2005/userhub/internal/logging"
	"github.com/dmitrijs2005/userhub/internal/server/auth"
	"github.com/dmitrijs2005/userhub/internal/server/config"
	"github.com/dmitrijs2005/userhub/internal/server/models"
	"github.com/dmitrijs2005/userhub/internal/server/repositories/repomanager"
)

// RegisterInput is the registration payload.
type RegisterInput struct {
	UserName string `json:"username" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginInput is the login payload.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is returned on a successful login. It never carries the
// password hash.
type LoginResult struct {
	ID           string               `json:"id"`
	IsAdmin      bool                 `json:"isAdmin"`
	ProfilePhoto *models.ProfilePhoto `json:"profilePhoto"`
	Token        string               `json:"token"`
}

// AuthService provides authentication-related operations:
// - Register: create users
// - Login: verify credentials and mint access tokens
type AuthService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	hasher                      cryptox.PasswordHasher
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	logger                      logging.Logger

	// dummyHash is compared against when the email is unknown, so both
	// failure paths cost one hash comparison.
	dummyHash func() string
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, h cryptox.PasswordHasher, cfg *config.Config, l logging.Logger) *AuthService {
	return &AuthService{
		db:                          db,
		repomanager:                 m,
		hasher:                      h,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		logger:                      l.With("module", "auth_service"),
		dummyHash: sync.OnceValue(func() string {
			digest, _ := h.Hash("userhub-unknown-account")
			return digest
		}),
	}
}

// Register validates the input and creates a non-admin user with no photo
// and an empty bio. The email lookup and the insert share one transaction;
// the unique constraint on email covers concurrent registrations.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, cryptox.ErrPasswordTooLong) {
			return nil, common.NewValidationError("password", "password is too long")
		}
		return nil, fmt.Errorf("%w: error hashing password: %w", common.ErrorInternal, err)
	}

	created, err := dbx.WithTxResult(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.User, error) {
		repo := s.repomanager.Users(tx)

		_, err := repo.FindByEmail(ctx, in.Email)
		if err == nil {
			return nil, common.ErrorAlreadyExists
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("error searching user: %w", err)
		}

		u, err := repo.Create(ctx, &models.User{
			UserName:     in.UserName,
			Email:        in.Email,
			PasswordHash: hash,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating user: %w", err)
		}
		return u, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", created.ID)
	return created, nil
}

// Login verifies the credentials and issues a signed token carrying the
// user id and admin flag. Unknown email and wrong password both yield
// common.ErrorInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Compare(in.Password, s.dummyHash())
			return nil, common.ErrorInvalidCredentials
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	if !s.hasher.Compare(in.Password, user.PasswordHash) {
		return nil, common.ErrorInvalidCredentials
	}

	token, err := auth.GenerateToken(user.ID, user.IsAdmin, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: error generating token: %w", common.ErrorInternal, err)
	}

	return &LoginResult{
		ID:           user.ID,
		IsAdmin:      user.IsAdmin,
		ProfilePhoto: user.ProfilePhoto,
		Token:        token,
	}, nil
}
