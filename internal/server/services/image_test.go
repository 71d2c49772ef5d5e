package services

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenbird/recipebook/internal/common"
	"github.com/ovenbird/recipebook/internal/logging"
	"github.com/ovenbird/recipebook/internal/server/models"
)

type fakeBlobStore struct {
	objects map[string][]byte
	putErr  error
	delErr  error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = data
	return nil
}

func (f *fakeBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return data, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.objects, key)
	return nil
}

func newImageService(t *testing.T, m *memStore, store *fakeBlobStore) *ImageService {
	t.Helper()
	db, _ := newSQLMockDB(t)
	t.Cleanup(func() { db.Close() })
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s, err := NewImageService(db, &fakeRepoManager{m: m}, store, logger)
	require.NoError(t, err)
	return s
}

// pngUpload renders a small PNG in memory so tests do not carry binary
// fixtures.
func pngUpload(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 0x20, G: 0x80, B: 0x40, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestAttachUserImage_StoresNormalizedJPEG(t *testing.T) {
	m := newMemStore()
	m.users["u1"] = &models.User{ID: "u1", Name: "Alice", PictureURL: "http://idp/pic"}
	store := newFakeBlobStore()
	s := newImageService(t, m, store)

	url, err := s.AttachUserImage(context.Background(), m.users["u1"], "avatar.png", pngUpload(t, 600, 400))
	assert.NoError(t, err)
	assert.Equal(t, "/user/u1/image", url)
	assert.Equal(t, url, m.users["u1"].ProfileURL)
	assert.NotEmpty(t, m.users["u1"].ImageKey)
	assert.True(t, strings.HasPrefix(m.users["u1"].ImageKey, "users/u1/"))

	stored, ok := store.objects[m.users["u1"].ImageKey]
	require.True(t, ok)

	img, err := imaging.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, 250, img.Bounds().Dx())
	assert.Equal(t, 250, img.Bounds().Dy())
}

func TestAttachUserImage_ReplacesOldBlob(t *testing.T) {
	m := newMemStore()
	m.users["u1"] = &models.User{ID: "u1", ImageKey: "users/u1/old.jpg"}
	store := newFakeBlobStore()
	store.objects["users/u1/old.jpg"] = []byte("old")
	s := newImageService(t, m, store)

	_, err := s.AttachUserImage(context.Background(), m.users["u1"], "avatar.jpg", pngUpload(t, 100, 100))
	assert.NoError(t, err)
	_, stillThere := store.objects["users/u1/old.jpg"]
	assert.False(t, stillThere)
	assert.Len(t, store.objects, 1)
}

func TestAttachUserImage_RejectsExtension(t *testing.T) {
	m := newMemStore()
	m.users["u1"] = &models.User{ID: "u1"}
	store := newFakeBlobStore()
	s := newImageService(t, m, store)

	_, err := s.AttachUserImage(context.Background(), m.users["u1"], "notes.pdf", []byte("%PDF"))
	assert.True(t, errors.Is(err, common.ErrorValidation))
	assert.Empty(t, store.objects)
}

func TestAttachUserImage_RejectsOversized(t *testing.T) {
	m := newMemStore()
	m.users["u1"] = &models.User{ID: "u1"}
	s := newImageService(t, m, newFakeBlobStore())

	_, err := s.AttachUserImage(context.Background(), m.users["u1"], "big.png", make([]byte, MaxImageBytes+1))
	assert.True(t, errors.Is(err, common.ErrorValidation))
}

func TestAttachUserImage_RejectsUndecodable(t *testing.T) {
	m := newMemStore()
	m.users["u1"] = &models.User{ID: "u1"}
	s := newImageService(t, m, newFakeBlobStore())

	_, err := s.AttachUserImage(context.Background(), m.users["u1"], "fake.png", []byte("not an image"))
	assert.True(t, errors.Is(err, common.ErrorValidation))
}

func TestRemoveUserImage_RestoresProviderPicture(t *testing.T) {
	m := newMemStore()
	m.users["u1"] = &models.User{ID: "u1", ImageKey: "users/u1/a.jpg", ProfileURL: "/user/u1/image", PictureURL: "http://idp/pic"}
	store := newFakeBlobStore()
	store.objects["users/u1/a.jpg"] = []byte("img")
	s := newImageService(t, m, store)

	err := s.RemoveUserImage(context.Background(), m.users["u1"])
	assert.NoError(t, err)
	assert.Empty(t, m.users["u1"].ImageKey)
	assert.Equal(t, "http://idp/pic", m.users["u1"].ProfileURL)
	assert.Empty(t, store.objects)
}

func TestUserImage_NotFoundWithoutImage(t *testing.T) {
	m := newMemStore()
	m.users["u1"] = &models.User{ID: "u1"}
	s := newImageService(t, m, newFakeBlobStore())

	_, err := s.UserImage(context.Background(), "u1")
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	_, err = s.UserImage(context.Background(), "missing")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}

func TestUserImage_ServesStoredBlob(t *testing.T) {
	m := newMemStore()
	m.users["u1"] = &models.User{ID: "u1", ImageKey: "users/u1/a.jpg"}
	store := newFakeBlobStore()
	store.objects["users/u1/a.jpg"] = []byte("jpeg-bytes")
	s := newImageService(t, m, store)

	data, err := s.UserImage(context.Background(), "u1")
	assert.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
}

func TestAttachRecipeImage_OwnerOnly(t *testing.T) {
	m := newMemStore()
	m.recipes["r1"] = &models.Recipe{ID: "r1", OwnerID: "u1"}
	s := newImageService(t, m, newFakeBlobStore())

	_, err := s.AttachRecipeImage(context.Background(), "u2", "r1", "dish.png", pngUpload(t, 100, 100))
	assert.True(t, errors.Is(err, common.ErrorUnauthorized))
}

func TestAttachRecipeImage_StoresAndBinds(t *testing.T) {
	m := newMemStore()
	m.recipes["r1"] = &models.Recipe{ID: "r1", OwnerID: "u1"}
	store := newFakeBlobStore()
	s := newImageService(t, m, store)

	url, err := s.AttachRecipeImage(context.Background(), "u1", "r1", "dish.jpeg", pngUpload(t, 300, 500))
	assert.NoError(t, err)
	assert.Equal(t, "/recipe/r1/image", url)
	assert.True(t, strings.HasPrefix(m.recipes["r1"].ImageKey, "recipes/r1/"))
	assert.Len(t, store.objects, 1)
}

func TestRecipeImage_DefaultFallback(t *testing.T) {
	m := newMemStore()
	m.recipes["r1"] = &models.Recipe{ID: "r1", OwnerID: "u1"}
	s := newImageService(t, m, newFakeBlobStore())

	data, err := s.RecipeImage(context.Background(), "r1")
	assert.NoError(t, err)
	require.NotEmpty(t, data)

	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 250, img.Bounds().Dx())

	_, err = s.RecipeImage(context.Background(), "missing")
	assert.True(t, errors.Is(err, common.ErrorNotFound))
}
