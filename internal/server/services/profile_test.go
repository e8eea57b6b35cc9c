package services

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/userhub/internal/common"
	"github.com/dmitrijs2005/userhub/internal/cryptox"
	"github.com/dmitrijs2005/userhub/internal/server/config"
	"github.com/dmitrijs2005/userhub/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	annID   = "2b7e1516-28ae-4d2a-abf7-158809cf4f3c"
	bobID   = "8a1f9c4e-5b0d-4e55-a3c2-4f7d6c2e9b10"
	adminID = "d3b07384-d9a0-4c9b-8f1e-1a2b3c4d5e6f"
)

type profileFixture struct {
	svc    *ProfileService
	repo   *fakeUsersRepo
	images *fakeImageHost
	logger *recordingLogger
	cfg    *config.Config
}

func newProfileFixture(t *testing.T, users ...*models.User) *profileFixture {
	t.Helper()
	f := &profileFixture{
		repo:   newFakeUsersRepo(users...),
		images: newFakeImageHost(),
		logger: newRecordingLogger(),
		cfg:    testConfig(t),
	}
	f.svc = NewProfileService(nil, &fakeRepoManager{u: f.repo}, cryptox.NewBcryptHasher(bcrypt.MinCost), f.images, f.cfg, f.logger)
	return f
}

func ann() *models.User {
	return &models.User{ID: annID, UserName: "ann", Email: "a@x.com", PasswordHash: "h-ann", Bio: "hello"}
}

func annWithPhoto(externalID string) *models.User {
	u := ann()
	u.ProfilePhoto = &models.ProfilePhoto{URL: "https://img.test/" + externalID, ExternalID: externalID}
	return u
}

func bob() *models.User {
	return &models.User{ID: bobID, UserName: "bob", Email: "b@x.com", PasswordHash: "h-bob"}
}

func owner(id string) models.Principal { return models.Principal{UserID: id} }

var adminPrincipal = models.Principal{UserID: adminID, IsAdmin: true}

func stagedFiles(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

// --- reads ---

func TestListAllAndCount(t *testing.T) {
	f := newProfileFixture(t, ann(), bob())
	ctx := context.Background()

	users, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a@x.com", users[0].Email)

	n, err := f.svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestListAllAndCount_Errors(t *testing.T) {
	f := newProfileFixture(t)
	f.repo.listErr = errBoom{}
	f.repo.countErr = errBoom{}

	_, err := f.svc.ListAll(context.Background())
	assert.ErrorIs(t, err, errBoom{})
	_, err = f.svc.Count(context.Background())
	assert.ErrorIs(t, err, errBoom{})
}

func TestGetByID(t *testing.T) {
	f := newProfileFixture(t, ann())
	ctx := context.Background()

	u, err := f.svc.GetByID(ctx, annID)
	require.NoError(t, err)
	assert.Equal(t, "ann", u.UserName)

	_, err = f.svc.GetByID(ctx, bobID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = f.svc.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

// --- update ---

func TestUpdate_BioOnlyIsIdempotent(t *testing.T) {
	f := newProfileFixture(t, annWithPhoto("profile-photos/old"))
	ctx := context.Background()
	in := UpdateInput{Bio: models.Some("x")}

	first, err := f.svc.Update(ctx, owner(annID), annID, in)
	require.NoError(t, err)
	second, err := f.svc.Update(ctx, owner(annID), annID, in)
	require.NoError(t, err)

	assert.Equal(t, "x", second.Bio)
	assert.Equal(t, "ann", second.UserName)
	assert.Equal(t, "h-ann", f.repo.get(annID).PasswordHash)
	assert.Equal(t, first.ProfilePhoto, second.ProfilePhoto)
	require.NotNil(t, second.ProfilePhoto)
	assert.Equal(t, "profile-photos/old", second.ProfilePhoto.ExternalID)
}

func TestUpdate_PasswordIsHashed(t *testing.T) {
	f := newProfileFixture(t, ann())

	_, err := f.svc.Update(context.Background(), owner(annID), annID, UpdateInput{Password: models.Some("new-secret-1")})
	require.NoError(t, err)

	require.Len(t, f.repo.updates, 1)
	patch := f.repo.updates[0]
	require.True(t, patch.PasswordHash.Set)
	assert.NotEqual(t, "new-secret-1", patch.PasswordHash.Value)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(patch.PasswordHash.Value), []byte("new-secret-1")))
	assert.False(t, patch.UserName.Set)
	assert.False(t, patch.Bio.Set)
}

func TestUpdate_EmptyPatchReturnsCurrentRecord(t *testing.T) {
	f := newProfileFixture(t, ann())

	u, err := f.svc.Update(context.Background(), owner(annID), annID, UpdateInput{})
	require.NoError(t, err)
	assert.Equal(t, "hello", u.Bio)
	require.Len(t, f.repo.updates, 1)
	assert.True(t, f.repo.updates[0].Empty())
}

func TestUpdate_NullBioClears(t *testing.T) {
	f := newProfileFixture(t, ann())

	u, err := f.svc.Update(context.Background(), owner(annID), annID, UpdateInput{Bio: models.Optional[string]{Set: true}})
	require.NoError(t, err)
	assert.Empty(t, u.Bio)
}

func TestUpdate_Validation(t *testing.T) {
	f := newProfileFixture(t, ann())
	ctx := context.Background()

	_, err := f.svc.Update(ctx, owner(annID), annID, UpdateInput{UserName: models.Some("a")})
	requireValidationError(t, err, "username", "username length must be at least 2 characters long")

	_, err = f.svc.Update(ctx, owner(annID), annID, UpdateInput{Password: models.Some("short")})
	requireValidationError(t, err, "password", "password length must be at least 8 characters long")

	_, err = f.svc.Update(ctx, owner(annID), annID, UpdateInput{Bio: models.Some(strings.Repeat("x", 501))})
	requireValidationError(t, err, "bio", "bio length must be at most 500 characters long")

	assert.Empty(t, f.repo.updates, "invalid input never reaches the store")
}

func TestUpdate_OwnerOrAdmin(t *testing.T) {
	f := newProfileFixture(t, ann())
	ctx := context.Background()

	_, err := f.svc.Update(ctx, owner(bobID), annID, UpdateInput{Bio: models.Some("x")})
	assert.ErrorIs(t, err, common.ErrorForbidden)
	assert.Empty(t, f.repo.updates)

	got, err := f.svc.Update(ctx, adminPrincipal, annID, UpdateInput{Bio: models.Some("moderated")})
	require.NoError(t, err)
	assert.Equal(t, "moderated", got.Bio)
	assert.Equal(t, "moderated", f.repo.get(annID).Bio)
}

type failingHasher struct{ cryptox.PasswordHasher }

func (failingHasher) Hash(string) (string, error) { return "", errBoom{} }

func TestUpdate_HashFailureIsInternal(t *testing.T) {
	f := newProfileFixture(t, ann())
	f.svc.hasher = failingHasher{}

	_, err := f.svc.Update(context.Background(), owner(annID), annID, UpdateInput{Password: models.Some("new-secret")})
	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.ErrorIs(t, err, errBoom{})
	assert.Empty(t, f.repo.updates)
}

func TestUpdate_NotFound(t *testing.T) {
	f := newProfileFixture(t)

	_, err := f.svc.Update(context.Background(), owner(annID), annID, UpdateInput{Bio: models.Some("x")})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

// --- upload ---

func TestUploadProfilePhoto_FirstPhoto(t *testing.T) {
	f := newProfileFixture(t, ann())

	photo, err := f.svc.UploadProfilePhoto(context.Background(), owner(annID), &PhotoUpload{Body: bytes.NewReader(pngBytes("a"))})
	require.NoError(t, err)

	assert.Equal(t, photo, f.repo.get(annID).ProfilePhoto)
	assert.Empty(t, f.images.removes, "no removal without a previous photo")
	assert.Equal(t, []string{"image/png"}, f.images.contentTypes)
	assert.Equal(t, pngBytes("a"), f.images.bodies[photo.ExternalID])
	assert.Empty(t, stagedFiles(t, f.cfg.UploadDir))
}

func TestUploadProfilePhoto_ReplacesAndRemovesOld(t *testing.T) {
	f := newProfileFixture(t, annWithPhoto("profile-photos/old"))
	f.images.put("profile-photos/old", time.Now().Add(-time.Hour))

	photo, err := f.svc.UploadProfilePhoto(context.Background(), owner(annID), &PhotoUpload{Body: bytes.NewReader(pngBytes("b"))})
	require.NoError(t, err)

	assert.Equal(t, "profile-photos/photo-1", photo.ExternalID)
	assert.Equal(t, photo, f.repo.get(annID).ProfilePhoto)
	assert.Equal(t, []string{"profile-photos/old"}, f.images.removes)
	assert.False(t, f.images.has("profile-photos/old"))
	assert.True(t, f.images.has(photo.ExternalID))
}

func TestUploadProfilePhoto_OldRemovalFailureIsIgnored(t *testing.T) {
	f := newProfileFixture(t, annWithPhoto("profile-photos/old"))
	f.images.removeErr["profile-photos/old"] = errBoom{}

	photo, err := f.svc.UploadProfilePhoto(context.Background(), owner(annID), &PhotoUpload{Body: bytes.NewReader(pngBytes("b"))})
	require.NoError(t, err)

	assert.Equal(t, photo, f.repo.get(annID).ProfilePhoto)
	assert.True(t, f.logger.has("warn", "failed to remove previous photo"))
}

func TestUploadProfilePhoto_UploadFailureKeepsOldPhoto(t *testing.T) {
	f := newProfileFixture(t, annWithPhoto("profile-photos/old"))
	f.images.uploadErr = common.ErrorExternalService

	_, err := f.svc.UploadProfilePhoto(context.Background(), owner(annID), &PhotoUpload{Body: bytes.NewReader(pngBytes("b"))})
	require.ErrorIs(t, err, common.ErrorExternalService)

	assert.Equal(t, "profile-photos/old", f.repo.get(annID).ProfilePhoto.ExternalID)
	assert.Empty(t, f.images.removes, "old photo is never removed before a new one exists")
	assert.Empty(t, f.repo.setPhotos)
	assert.Empty(t, stagedFiles(t, f.cfg.UploadDir))
}

func TestUploadProfilePhoto_CommitFailureRemovesNewObject(t *testing.T) {
	f := newProfileFixture(t, annWithPhoto("profile-photos/old"))
	f.repo.setPhotoErr = errBoom{}

	_, err := f.svc.UploadProfilePhoto(context.Background(), owner(annID), &PhotoUpload{Body: bytes.NewReader(pngBytes("b"))})
	require.ErrorIs(t, err, errBoom{})

	require.Len(t, f.images.uploads, 1)
	newID := f.images.uploads[0]
	assert.Equal(t, []string{newID}, f.images.removes, "only the new object is removed")
	assert.False(t, f.images.has(newID))
	assert.Equal(t, "profile-photos/old", f.repo.get(annID).ProfilePhoto.ExternalID)
	assert.Empty(t, stagedFiles(t, f.cfg.UploadDir))
}

func TestUploadProfilePhoto_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		upload  *PhotoUpload
		message string
	}{
		{name: "nil upload", upload: nil, message: "no image provided"},
		{name: "nil body", upload: &PhotoUpload{}, message: "no image provided"},
		{name: "empty body", upload: &PhotoUpload{Body: bytes.NewReader(nil)}, message: "no image provided"},
		{name: "not an image", upload: &PhotoUpload{Body: strings.NewReader("just some text")}, message: "only image files are allowed"},
		{name: "too large", upload: &PhotoUpload{Body: bytes.NewReader(pngBytes(strings.Repeat("x", 2048)))}, message: "image must not exceed 1024 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProfileFixture(t, annWithPhoto("profile-photos/old"))

			_, err := f.svc.UploadProfilePhoto(context.Background(), owner(annID), tt.upload)
			requireValidationError(t, err, "image", tt.message)

			assert.Empty(t, f.images.uploads)
			assert.Empty(t, f.images.removes)
			assert.Equal(t, "profile-photos/old", f.repo.get(annID).ProfilePhoto.ExternalID)
			assert.Empty(t, stagedFiles(t, f.cfg.UploadDir))
		})
	}
}

func TestUploadProfilePhoto_UnknownUser(t *testing.T) {
	f := newProfileFixture(t)

	_, err := f.svc.UploadProfilePhoto(context.Background(), owner(annID), &PhotoUpload{Body: bytes.NewReader(pngBytes("a"))})
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Empty(t, f.images.uploads)
	assert.Empty(t, stagedFiles(t, f.cfg.UploadDir))
}

// --- delete ---

func TestDeleteProfile_WithPhoto(t *testing.T) {
	f := newProfileFixture(t, annWithPhoto("profile-photos/old"))

	require.NoError(t, f.svc.DeleteProfile(context.Background(), owner(annID), annID))

	assert.Equal(t, []string{"profile-photos/old"}, f.images.removes)
	assert.Nil(t, f.repo.get(annID))

	_, err := f.svc.GetByID(context.Background(), annID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeleteProfile_WithoutPhotoMakesNoRemoveCalls(t *testing.T) {
	f := newProfileFixture(t, ann())

	require.NoError(t, f.svc.DeleteProfile(context.Background(), owner(annID), annID))
	assert.Empty(t, f.images.removes)
	assert.Nil(t, f.repo.get(annID))
}

func TestDeleteProfile_AdminMayDeleteOthers(t *testing.T) {
	f := newProfileFixture(t, ann(), bob())

	require.NoError(t, f.svc.DeleteProfile(context.Background(), adminPrincipal, annID))
	assert.Nil(t, f.repo.get(annID))

	err := f.svc.DeleteProfile(context.Background(), owner(annID), bobID)
	assert.ErrorIs(t, err, common.ErrorForbidden)
	assert.NotNil(t, f.repo.get(bobID))
}

func TestDeleteProfile_HostFailureKeepsRecord(t *testing.T) {
	f := newProfileFixture(t, annWithPhoto("profile-photos/old"))
	f.images.removeErr["profile-photos/old"] = errBoom{}

	err := f.svc.DeleteProfile(context.Background(), owner(annID), annID)
	require.ErrorIs(t, err, common.ErrorExternalService)
	assert.True(t, errors.Is(err, errBoom{}))

	assert.NotNil(t, f.repo.get(annID))
	assert.Empty(t, f.repo.deletes)
}

func TestDeleteProfile_NotFound(t *testing.T) {
	f := newProfileFixture(t)

	err := f.svc.DeleteProfile(context.Background(), adminPrincipal, annID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	err = f.svc.DeleteProfile(context.Background(), adminPrincipal, "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Empty(t, f.images.removes)
}
