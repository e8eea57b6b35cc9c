// Package rest exposes the user account API over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dmitrijs2005/userhub/internal/common"
	"github.com/dmitrijs2005/userhub/internal/logging"
	"github.com/dmitrijs2005/userhub/internal/server/models"
	"github.com/dmitrijs2005/userhub/internal/server/services"
	"github.com/gorilla/mux"
)

// photoField is the multipart field carrying the profile photo.
const photoField = "image"

// AuthService is what the handlers need from services.AuthService.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
}

// ProfileService is what the handlers need from services.ProfileService.
type ProfileService interface {
	ListAll(ctx context.Context) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, p models.Principal, id string, in services.UpdateInput) (*models.User, error)
	UploadProfilePhoto(ctx context.Context, p models.Principal, image *services.PhotoUpload) (*models.ProfilePhoto, error)
	DeleteProfile(ctx context.Context, p models.Principal, id string) error
}

// Handler holds the HTTP handlers of the API.
type Handler struct {
	auth           AuthService
	profiles       ProfileService
	maxUploadBytes int64
	logger         logging.Logger
}

// NewHandler constructs a Handler. maxUploadBytes caps the whole multipart
// request body of a photo upload.
func NewHandler(a AuthService, p ProfileService, maxUploadBytes int64, l logging.Logger) *Handler {
	return &Handler{
		auth:           a,
		profiles:       p,
		maxUploadBytes: maxUploadBytes,
		logger:         l.With("module", "rest"),
	}
}

type uploadResponse struct {
	Message      string               `json:"message"`
	ProfilePhoto *models.ProfilePhoto `json:"profilePhoto"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return common.NewValidationError("", "invalid request body")
	}
	return nil
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if _, err := h.auth.Register(r.Context(), in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeMessage(w, http.StatusCreated, "you registered successfully, please log in")
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in services.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ListProfiles handles GET /api/users/profile.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	users, err := h.profiles.ListAll(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// CountProfiles handles GET /api/users/count.
func (h *Handler) CountProfiles(w http.ResponseWriter, r *http.Request) {
	n, err := h.profiles.Count(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// GetProfile handles GET /api/users/profile/{id}.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.profiles.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateProfile handles PUT /api/users/profile/{id}.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "no token provided")
		return
	}

	var in services.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	u, err := h.profiles.Update(r.Context(), p, mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// DeleteProfile handles DELETE /api/users/profile/{id}.
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "no token provided")
		return
	}

	if err := h.profiles.DeleteProfile(r.Context(), p, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "your profile has been deleted")
}

// UploadProfilePhoto handles POST /api/users/profile/profile-photo-upload.
// The photo is streamed from the multipart field "image"; other parts are
// skipped.
func (h *Handler) UploadProfilePhoto(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "no token provided")
		return
	}

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	var upload *services.PhotoUpload
	part, err := findPart(r, photoField)
	switch {
	case err == nil:
		defer part.Close()
		upload = &services.PhotoUpload{Body: part}
	case errors.Is(err, errPartNotFound), errors.Is(err, http.ErrNotMultipart):
		// nil upload is rejected by the service
	default:
		writeError(w, r, h.logger, common.NewValidationError(photoField, "malformed multipart body"))
		return
	}

	photo, err := h.profiles.UploadProfilePhoto(r.Context(), p, upload)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, r, h.logger, common.NewValidationError(photoField, "request body too large"))
			return
		}
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:      "your profile photo uploaded successfully",
		ProfilePhoto: photo,
	})
}

var errPartNotFound = errors.New("multipart field not found")

func findPart(r *http.Request, name string) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errPartNotFound
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == name {
			return part, nil
		}
		_ = part.Close()
	}
}
