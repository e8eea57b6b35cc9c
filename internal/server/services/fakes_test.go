package services

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/userhub/internal/common"
	"github.com/dmitrijs2005/userhub/internal/dbx"
	"github.com/dmitrijs2005/userhub/internal/logging"
	"github.com/dmitrijs2005/userhub/internal/server/config"
	"github.com/dmitrijs2005/userhub/internal/server/imagehost"
	"github.com/dmitrijs2005/userhub/internal/server/models"
	usersrepo "github.com/dmitrijs2005/userhub/internal/server/repositories/users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SecretKey:                   "test-secret",
		AccessTokenValidityDuration: time.Hour,
		UploadDir:                   t.TempDir(),
		MaxPhotoSize:                1024,
	}
}

// pngBytes starts with the PNG signature so content sniffing reports image/png.
func pngBytes(payload string) []byte {
	return append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), payload...)
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- users repository ---

type fakeUsersRepo struct {
	mu    sync.Mutex
	users map[string]*models.User

	findByEmailErr  error
	findByIDErr     error
	createErr       error
	updateErr       error
	setPhotoErr     error
	deleteErr       error
	listErr         error
	countErr        error
	listPhotoIDsErr error

	creates   int
	updates   []models.UserPatch
	setPhotos []*models.ProfilePhoto
	deletes   []string
}

func newFakeUsersRepo(users ...*models.User) *fakeUsersRepo {
	r := &fakeUsersRepo{users: map[string]*models.User{}}
	for _, u := range users {
		r.users[u.ID] = cloneUser(u)
	}
	return r
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.ProfilePhoto != nil {
		p := *u.ProfilePhoto
		c.ProfilePhoto = &p
	}
	return &c
}

func (r *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return nil, r.createErr
	}
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	c := cloneUser(u)
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.users[c.ID] = c
	return cloneUser(c), nil
}

func (r *fakeUsersRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findByEmailErr != nil {
		return nil, r.findByEmailErr
	}
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *fakeUsersRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findByIDErr != nil {
		return nil, r.findByIDErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneUser(u), nil
}

func (r *fakeUsersRepo) List(context.Context) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *fakeUsersRepo) Count(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	return int64(len(r.users)), nil
}

func (r *fakeUsersRepo) Update(_ context.Context, id string, patch models.UserPatch) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, patch)
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if patch.UserName.Set {
		u.UserName = patch.UserName.Value
	}
	if patch.PasswordHash.Set {
		u.PasswordHash = patch.PasswordHash.Value
	}
	if patch.Bio.Set {
		u.Bio = patch.Bio.Value
	}
	return cloneUser(u), nil
}

func (r *fakeUsersRepo) SetProfilePhoto(_ context.Context, id string, photo *models.ProfilePhoto) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setPhotos = append(r.setPhotos, photo)
	if r.setPhotoErr != nil {
		return r.setPhotoErr
	}
	u, ok := r.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	if photo == nil {
		u.ProfilePhoto = nil
	} else {
		p := *photo
		u.ProfilePhoto = &p
	}
	return nil
}

func (r *fakeUsersRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, id)
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *fakeUsersRepo) ListPhotoIDs(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listPhotoIDsErr != nil {
		return nil, r.listPhotoIDsErr
	}
	var ids []string
	for _, u := range r.users {
		if u.HasProfilePhoto() {
			ids = append(ids, u.ProfilePhoto.ExternalID)
		}
	}
	return ids, nil
}

func (r *fakeUsersRepo) get(id string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil
	}
	return cloneUser(u)
}

type fakeRepoManager struct {
	u *fakeUsersRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return m.u }

// --- image host ---

type fakeImageHost struct {
	mu      sync.Mutex
	objects map[string]imagehost.Object
	bodies  map[string][]byte
	seq     int

	uploadErr error
	removeErr map[string]error
	listErr   error

	uploads      []string
	contentTypes []string
	removes      []string
}

func newFakeImageHost() *fakeImageHost {
	return &fakeImageHost{
		objects:   map[string]imagehost.Object{},
		bodies:    map[string][]byte{},
		removeErr: map[string]error{},
	}
}

func (h *fakeImageHost) put(id string, modified time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.objects[id] = imagehost.Object{ExternalID: id, LastModified: modified}
}

func (h *fakeImageHost) has(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.objects[id]
	return ok
}

func (h *fakeImageHost) Upload(_ context.Context, body io.Reader, size int64, contentType string) (*models.ProfilePhoto, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.uploadErr != nil {
		return nil, h.uploadErr
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, body)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("size mismatch: read %d, declared %d", n, size)
	}
	h.seq++
	id := fmt.Sprintf("%sphoto-%d", imagehost.KeyPrefix, h.seq)
	h.objects[id] = imagehost.Object{ExternalID: id, LastModified: time.Now()}
	h.bodies[id] = buf.Bytes()
	h.uploads = append(h.uploads, id)
	h.contentTypes = append(h.contentTypes, contentType)
	return &models.ProfilePhoto{URL: "https://img.test/" + id, ExternalID: id}, nil
}

func (h *fakeImageHost) Remove(_ context.Context, externalID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removes = append(h.removes, externalID)
	if err := h.removeErr[externalID]; err != nil {
		return err
	}
	delete(h.objects, externalID)
	delete(h.bodies, externalID)
	return nil
}

func (h *fakeImageHost) List(context.Context) ([]imagehost.Object, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listErr != nil {
		return nil, h.listErr
	}
	out := make([]imagehost.Object, 0, len(h.objects))
	for _, o := range h.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

// --- logger ---

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) Debug(_ context.Context, msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(_ context.Context, msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(_ context.Context, msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(_ context.Context, msg string, _ ...any) { l.add("error", msg) }
func (l *recordingLogger) With(...any) logging.Logger                    { return l }

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range *l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}
