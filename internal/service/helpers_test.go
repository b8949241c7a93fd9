package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/smartprint/printstage/internal/apperr"
	"github.com/smartprint/printstage/internal/models"
)

// newStaticServer serves the same body for every request and returns its
// base URL.
func newStaticServer(t *testing.T, content string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, content)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// fakeRegistry is an in-memory Registry for tests. Files keep insertion
// order.
type fakeRegistry struct {
	mu    sync.Mutex
	users map[string]*models.User
	files []*models.File
	index map[string][]string

	createFileErr error
	appendErr     error
	bulkErr       error
}

func newFakeRegistry(users ...*models.User) *fakeRegistry {
	r := &fakeRegistry{
		users: make(map[string]*models.User),
		index: make(map[string][]string),
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeRegistry) addFile(f *models.File) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, f)
	r.index[f.UserID] = append(r.index[f.UserID], f.ID)
}

func (r *fakeRegistry) fileByID(id string) *models.File {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (r *fakeRegistry) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return user, nil
}

// ResolveUser lets the fake double as a UserDirectory.
func (r *fakeRegistry) ResolveUser(ctx context.Context, userID string) (*models.User, error) {
	return r.GetUserByID(ctx, userID)
}

func (r *fakeRegistry) UpsertUserByEmail(ctx context.Context, email, name, image string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			u.Name = name
			u.Image = image
			return u, nil
		}
	}
	user := &models.User{
		ID:        "user-" + email,
		Email:     email,
		Name:      name,
		Image:     image,
		CreatedAt: time.Now(),
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeRegistry) CreateFile(ctx context.Context, file *models.File) error {
	if r.createFileErr != nil {
		return r.createFileErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, file)
	return nil
}

func (r *fakeRegistry) AppendUserFile(ctx context.Context, userID, fileID string) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index[userID] = append(r.index[userID], fileID)
	return nil
}

func (r *fakeRegistry) ListFilesByStatus(ctx context.Context, userID string, status models.FileStatus) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.File
	for _, f := range r.files {
		if f.UserID == userID && f.Status == status {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeRegistry) BulkUpdateStatus(ctx context.Context, userID string, from, to models.FileStatus) (int64, error) {
	if r.bulkErr != nil {
		return 0, r.bulkErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, f := range r.files {
		if f.UserID == userID && f.Status == from {
			f.Status = to
			count++
		}
	}
	return count, nil
}

func (r *fakeRegistry) ListFileIDsByUser(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, f := range r.files {
		if f.UserID == userID {
			ids = append(ids, f.ID)
		}
	}
	return ids, nil
}

func (r *fakeRegistry) ListUserFileIndex(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.index[userID]...), nil
}

func (r *fakeRegistry) ReplaceUserFiles(ctx context.Context, userID string, fileIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index[userID] = append([]string(nil), fileIDs...)
	return nil
}

// fakeUserCache records cache traffic.
type fakeUserCache struct {
	mu    sync.Mutex
	users map[string]*models.User
	gets  int
	sets  int
}

func newFakeUserCache() *fakeUserCache {
	return &fakeUserCache{users: make(map[string]*models.User)}
}

func (c *fakeUserCache) GetUser(ctx context.Context, userID string) (*models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	return c.users[userID], nil
}

func (c *fakeUserCache) SetUser(ctx context.Context, user *models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.users[user.ID] = user
	return nil
}

func (c *fakeUserCache) InvalidateUser(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, userID)
	return nil
}

// failingStaging rejects every operation.
type failingStaging struct {
	putErr    error
	removeErr error
	removes   int
}

func (s *failingStaging) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	return s.putErr
}

func (s *failingStaging) Remove(ctx context.Context, key string) error {
	s.removes++
	return s.removeErr
}
