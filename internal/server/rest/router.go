package rest

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/userhub/internal/logging"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// requestTimeout bounds the context of every API request.
const requestTimeout = 30 * time.Second

// RouterOptions configures NewRouter.
type RouterOptions struct {
	SecretKey      []byte
	LoginLimiter   *ClientLimiter
	AllowedOrigins []string
	Logger         logging.Logger
}

// NewRouter wires the API routes, access checks and CORS around h.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	l := opts.Logger.With("module", "http")
	authn := authenticate(opts.SecretKey)

	r := mux.NewRouter()
	r.Use(logRequests(l), withTimeout(requestTimeout))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	authRouter := r.PathPrefix("/api/auth").Subrouter()
	authRouter.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	authRouter.Handle("/login", rateLimit(opts.LoginLimiter)(http.HandlerFunc(h.Login))).Methods(http.MethodPost)

	users := r.PathPrefix("/api/users").Subrouter()
	users.Handle("/profile", authn(requireAdmin(http.HandlerFunc(h.ListProfiles)))).Methods(http.MethodGet)
	users.Handle("/count", authn(requireAdmin(http.HandlerFunc(h.CountProfiles)))).Methods(http.MethodGet)
	users.Handle("/profile/profile-photo-upload", authn(http.HandlerFunc(h.UploadProfilePhoto))).Methods(http.MethodPost)
	users.HandleFunc("/profile/{id}", h.GetProfile).Methods(http.MethodGet)
	users.Handle("/profile/{id}", authn(http.HandlerFunc(h.UpdateProfile))).Methods(http.MethodPut)
	users.Handle("/profile/{id}", authn(http.HandlerFunc(h.DeleteProfile))).Methods(http.MethodDelete)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	return c.Handler(r)
}
