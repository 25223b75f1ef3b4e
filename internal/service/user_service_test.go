package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eaglebank/usermanager/internal/cqrs"
	"github.com/eaglebank/usermanager/internal/events"
	"github.com/eaglebank/usermanager/internal/models"
	"github.com/eaglebank/usermanager/internal/password"
	"github.com/eaglebank/usermanager/internal/repository"
)

// ---- fakes ----

type countingHasher struct {
	calls atomic.Int32
	err   error
}

func (h *countingHasher) Hash(plaintext string) (string, error) {
	h.calls.Add(1)
	if h.err != nil {
		return "", h.err
	}
	return fmt.Sprintf("hashed(%d)", len(plaintext)), nil
}

// failingStore delegates to an in-memory store unless an error is configured
// for the operation.
type failingStore struct {
	*repository.MemoryUserRepository
	findAllErr     error
	findByIDErr    error
	findByEmailErr error
	insertErr      error
	saveErr        error
	deleteErr      error
}

func newFailingStore() *failingStore {
	return &failingStore{MemoryUserRepository: repository.NewMemoryUserRepository()}
}

func (s *failingStore) FindAll(ctx context.Context) ([]models.User, error) {
	if s.findAllErr != nil {
		return nil, s.findAllErr
	}
	return s.MemoryUserRepository.FindAll(ctx)
}

func (s *failingStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.findByIDErr != nil {
		return nil, s.findByIDErr
	}
	return s.MemoryUserRepository.FindByID(ctx, id)
}

func (s *failingStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.findByEmailErr != nil {
		return nil, s.findByEmailErr
	}
	return s.MemoryUserRepository.FindByEmail(ctx, email)
}

func (s *failingStore) Insert(ctx context.Context, username, email, credential string) (*models.User, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	return s.MemoryUserRepository.Insert(ctx, username, email, credential)
}

func (s *failingStore) Save(ctx context.Context, user *models.User) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryUserRepository.Save(ctx, user)
}

func (s *failingStore) Delete(ctx context.Context, user *models.User) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryUserRepository.Delete(ctx, user)
}

type mapCache struct {
	mu    sync.Mutex
	views map[string]models.UserView
}

func newMapCache() *mapCache { return &mapCache{views: map[string]models.UserView{}} }

func (c *mapCache) Get(_ context.Context, key string) (*models.UserView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[key]
	if !ok {
		return nil, false
	}
	return &v, true
}

func (c *mapCache) Set(_ context.Context, key string, view *models.UserView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[key] = *view
}

func (c *mapCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, key)
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, stream, eventType string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stream != events.UserEventsStream {
		return errors.Errorf("unexpected stream %s", stream)
	}
	p.types = append(p.types, eventType)
	return p.err
}

type fixture struct {
	svc       *UserService
	store     *failingStore
	hasher    *countingHasher
	cache     *mapCache
	publisher *recordingPublisher
	logs      *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newFailingStore(),
		hasher:    &countingHasher{},
		cache:     newMapCache(),
		publisher: &recordingPublisher{},
		logs:      &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(f.logs, nil))
	f.svc = NewUserService(f.store, f.hasher,
		WithViewCache(f.cache),
		WithPublisher(f.publisher),
		WithLogger(logger),
	)
	return f
}

func (f *fixture) create(t *testing.T, username, email, pw string) *models.UserView {
	t.Helper()
	view, err := f.svc.Create(context.Background(), cqrs.CreateUserCommand{Username: username, Email: email, Password: pw})
	require.NoError(t, err)
	return view
}

// ---- scenarios ----

func TestCreate_Success(t *testing.T) {
	f := newFixture(t)

	view := f.create(t, "alice", "a@x.com", "pw")

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "alice", view.Username)
	assert.Equal(t, "a@x.com", view.Email)
	assert.EqualValues(t, 1, f.hasher.calls.Load())
	assert.Equal(t, []string{events.UserCreated}, f.publisher.types)

	_, ok := f.cache.Get(context.Background(), viewKey(view.ID))
	assert.False(t, ok, "the cache is filled by reads only")
}

func TestCreate_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.create(t, "alice", "a@x.com", "pw")

	_, err := f.svc.Create(context.Background(), cqrs.CreateUserCommand{Username: "alice-again", Email: "a@x.com", Password: "pw2"})

	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "A user with this email already exists.", MessageOf(err))
	assert.EqualValues(t, 1, f.hasher.calls.Load(), "no hashing on a doomed request")
}

func TestCreate_EmailMatchIsExact(t *testing.T) {
	f := newFixture(t)
	f.create(t, "alice", "a@x.com", "pw")

	_, err := f.svc.Create(context.Background(), cqrs.CreateUserCommand{Username: "alice", Email: "A@X.com", Password: "pw"})
	assert.NoError(t, err)
}

func TestCreate_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		cmd     cqrs.CreateUserCommand
		missing []string
	}{
		{"empty username", cqrs.CreateUserCommand{Username: "", Email: "b@x.com", Password: "pw"}, []string{"username"}},
		{"blank email", cqrs.CreateUserCommand{Username: "bob", Email: "   ", Password: "pw"}, []string{"email"}},
		{"blank password", cqrs.CreateUserCommand{Username: "bob", Email: "b@x.com", Password: "\t"}, []string{"password"}},
		{"nothing", cqrs.CreateUserCommand{}, []string{"username", "email", "password"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.findByEmailErr = errors.New("store must not be reached")

			_, err := f.svc.Create(context.Background(), tt.cmd)

			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, "Invalid data. Required: username, email, and password.", MessageOf(err))
			var svcErr *Error
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, tt.missing, svcErr.Fields)
			assert.Zero(t, f.hasher.calls.Load())
		})
	}
}

func TestCreate_TrimsIdentityFields(t *testing.T) {
	f := newFixture(t)
	view := f.create(t, "  alice ", " a@x.com\n", "pw")
	assert.Equal(t, "alice", view.Username)
	assert.Equal(t, "a@x.com", view.Email)

	_, err := f.svc.Create(context.Background(), cqrs.CreateUserCommand{Username: "x", Email: "a@x.com ", Password: "pw"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreate_StoreFailures(t *testing.T) {
	t.Run("lookup fails", func(t *testing.T) {
		f := newFixture(t)
		f.store.findByEmailErr = errors.New("connection refused")

		_, err := f.svc.Create(context.Background(), cqrs.CreateUserCommand{Username: "a", Email: "a@x.com", Password: "pw"})
		require.ErrorIs(t, err, ErrStoreUnavailable)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Zero(t, f.hasher.calls.Load())
		assert.Contains(t, f.logs.String(), "user store failed")
	})

	t.Run("insert fails", func(t *testing.T) {
		f := newFixture(t)
		f.store.insertErr = errors.New("disk full")

		_, err := f.svc.Create(context.Background(), cqrs.CreateUserCommand{Username: "a", Email: "a@x.com", Password: "pw"})
		require.ErrorIs(t, err, ErrStoreUnavailable)
		assert.Empty(t, f.publisher.types)
	})

	t.Run("insert loses the uniqueness race", func(t *testing.T) {
		f := newFixture(t)
		f.store.insertErr = repository.ErrDuplicateEmail

		_, err := f.svc.Create(context.Background(), cqrs.CreateUserCommand{Username: "a", Email: "a@x.com", Password: "pw"})
		require.ErrorIs(t, err, ErrConflict)
		assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
		assert.Equal(t, MsgEmailTaken, MessageOf(err))
	})
}

func TestCreate_HasherFailure(t *testing.T) {
	f := newFixture(t)
	f.hasher.err = errors.New("entropy exhausted")

	_, err := f.svc.Create(context.Background(), cqrs.CreateUserCommand{Username: "a", Email: "a@x.com", Password: "pw"})
	require.ErrorIs(t, err, ErrInternal)
	all, _ := f.store.FindAll(context.Background())
	assert.Empty(t, all)
}

func TestCreate_NoPlaintextAtRest(t *testing.T) {
	hasher, err := password.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	store := repository.NewMemoryUserRepository()
	svc := NewUserService(store, hasher)

	for i, pw := range []string{"pw", "hunter2", "correct horse battery staple"} {
		view, err := svc.Create(context.Background(), cqrs.CreateUserCommand{
			Username: "u", Email: fmt.Sprintf("u%d@x.com", i), Password: pw,
		})
		require.NoError(t, err)

		stored, err := store.FindByID(context.Background(), view.ID)
		require.NoError(t, err)
		assert.NotEqual(t, pw, stored.PasswordHash)
		assert.NotContains(t, stored.PasswordHash, pw)
		assert.True(t, hasher.Verify(pw, stored.PasswordHash))
	}
}

func TestCreate_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)

	const workers = 16
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), cqrs.CreateUserCommand{
				Username: fmt.Sprintf("user%d", i), Email: "same@x.com", Password: "pw",
			})
			if err == nil {
				succeeded.Add(1)
			} else if errors.Is(err, ErrConflict) {
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, workers-1, conflicts.Load())
}

func TestFindByID(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "alice", "a@x.com", "pw")

	t.Run("round trip", func(t *testing.T) {
		view, err := f.svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: created.ID})
		require.NoError(t, err)
		assert.Equal(t, "alice", view.Username)
		assert.Equal(t, "a@x.com", view.Email)
	})

	t.Run("served from store after cache eviction", func(t *testing.T) {
		f.cache.Delete(context.Background(), viewKey(created.ID))
		view, err := f.svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: created.ID})
		require.NoError(t, err)
		assert.Equal(t, created.ID, view.ID)
		_, ok := f.cache.Get(context.Background(), viewKey(created.ID))
		assert.True(t, ok, "store hit warms the cache")
	})

	t.Run("nonexistent", func(t *testing.T) {
		_, err := f.svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: "usr-missing"})
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, "User not found.", MessageOf(err))
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := f.svc.FindByID(context.Background(), cqrs.GetUserQuery{})
		require.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, "Invalid data. Required: id.", MessageOf(err))
	})

	t.Run("store down", func(t *testing.T) {
		f.cache.Delete(context.Background(), viewKey(created.ID))
		f.store.findByIDErr = errors.New("timeout")
		defer func() { f.store.findByIDErr = nil }()

		_, err := f.svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: created.ID})
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestList(t *testing.T) {
	f := newFixture(t)

	views, err := f.svc.List(context.Background(), cqrs.ListUsersQuery{})
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)

	a := f.create(t, "alice", "a@x.com", "pw")
	b := f.create(t, "bob", "b@x.com", "pw")

	views, err = f.svc.List(context.Background(), cqrs.ListUsersQuery{})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, a.ID, views[0].ID)
	assert.Equal(t, b.ID, views[1].ID)

	f.store.findAllErr = errors.New("db down")
	_, err = f.svc.List(context.Background(), cqrs.ListUsersQuery{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "alice", "a@x.com", "pw")
	before, err := f.store.FindByID(context.Background(), created.ID)
	require.NoError(t, err)

	view, err := f.svc.Update(context.Background(), cqrs.UpdateUserCommand{UserID: created.ID, Username: "alice2"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, view.ID)
	assert.Equal(t, "alice2", view.Username)

	found, err := f.svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, "alice2", found.Username)
	assert.Equal(t, "a@x.com", found.Email)

	after, err := f.store.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Email, after.Email)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
	assert.Equal(t, []string{events.UserCreated, events.UserUpdated}, f.publisher.types)
}

func TestUpdate_Failures(t *testing.T) {
	t.Run("missing fields", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Update(context.Background(), cqrs.UpdateUserCommand{UserID: "usr-1"})
		require.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, "Invalid data. Required: id and username.", MessageOf(err))
	})

	t.Run("unknown id", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Update(context.Background(), cqrs.UpdateUserCommand{UserID: "usr-404", Username: "x"})
		require.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, f.publisher.types)
	})

	t.Run("deleted between load and save", func(t *testing.T) {
		f := newFixture(t)
		created := f.create(t, "alice", "a@x.com", "pw")
		f.store.saveErr = repository.ErrUserNotFound

		_, err := f.svc.Update(context.Background(), cqrs.UpdateUserCommand{UserID: created.ID, Username: "x"})
		require.ErrorIs(t, err, ErrNotFound)
		_, ok := f.cache.Get(context.Background(), viewKey(created.ID))
		assert.False(t, ok)
	})

	t.Run("save fails", func(t *testing.T) {
		f := newFixture(t)
		created := f.create(t, "alice", "a@x.com", "pw")
		f.store.saveErr = errors.New("read-only transaction")

		_, err := f.svc.Update(context.Background(), cqrs.UpdateUserCommand{UserID: created.ID, Username: "x"})
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "alice", "a@x.com", "pw")

	require.NoError(t, f.svc.Delete(context.Background(), cqrs.DeleteUserCommand{UserID: created.ID}))

	_, err := f.svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: created.ID})
	assert.ErrorIs(t, err, ErrNotFound, "cache must not resurrect a deleted user")

	err = f.svc.Delete(context.Background(), cqrs.DeleteUserCommand{UserID: created.ID})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, MsgUserNotFound, MessageOf(err))

	assert.Equal(t, []string{events.UserCreated, events.UserDeleted}, f.publisher.types)

	// The email can be registered again.
	f.create(t, "alice", "a@x.com", "pw")
}

func TestDelete_Failures(t *testing.T) {
	t.Run("missing id", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.Delete(context.Background(), cqrs.DeleteUserCommand{})
		require.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, "Invalid data. Required: id.", MessageOf(err))
	})

	t.Run("store fails", func(t *testing.T) {
		f := newFixture(t)
		created := f.create(t, "alice", "a@x.com", "pw")
		f.store.deleteErr = errors.New("lock timeout")

		err := f.svc.Delete(context.Background(), cqrs.DeleteUserCommand{UserID: created.ID})
		require.ErrorIs(t, err, ErrStoreUnavailable)
		_, err = f.svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: created.ID})
		assert.NoError(t, err)
	})
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("redis down")

	view := f.create(t, "alice", "a@x.com", "pw")
	assert.NotEmpty(t, view.ID)
	assert.Contains(t, f.logs.String(), "failed to publish user event")
}

func TestNewUserService_Defaults(t *testing.T) {
	svc := NewUserService(repository.NewMemoryUserRepository(), &countingHasher{})

	view, err := svc.Create(context.Background(), cqrs.CreateUserCommand{Username: "a", Email: "a@x.com", Password: "pw"})
	require.NoError(t, err)
	found, err := svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: view.ID})
	require.NoError(t, err)
	assert.Equal(t, view.ID, found.ID)
}

// pausingStore blocks the first FindByID after it has read the store, until
// resume is closed.
type pausingStore struct {
	*repository.MemoryUserRepository
	once   sync.Once
	read   chan struct{}
	resume chan struct{}
}

func newPausingStore() *pausingStore {
	return &pausingStore{
		MemoryUserRepository: repository.NewMemoryUserRepository(),
		read:                 make(chan struct{}),
		resume:               make(chan struct{}),
	}
}

func (s *pausingStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.MemoryUserRepository.FindByID(ctx, id)
	pause := false
	s.once.Do(func() { pause = true })
	if pause {
		close(s.read)
		<-s.resume
	}
	return user, err
}

// startPausedRead creates a user, then begins a FindByID that stops right
// after its store read. The returned channel yields the read's error.
func startPausedRead(t *testing.T) (*UserService, *pausingStore, *mapCache, string, <-chan error) {
	t.Helper()
	store := newPausingStore()
	cache := newMapCache()
	svc := NewUserService(store, &countingHasher{}, WithViewCache(cache))

	created, err := svc.Create(context.Background(), cqrs.CreateUserCommand{Username: "alice", Email: "a@x.com", Password: "pw"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: created.ID})
		done <- err
	}()
	<-store.read
	return svc, store, cache, created.ID, done
}

func TestFindByID_ReadRacingDeleteDoesNotResurrect(t *testing.T) {
	svc, store, cache, id, done := startPausedRead(t)

	require.NoError(t, svc.Delete(context.Background(), cqrs.DeleteUserCommand{UserID: id}))
	close(store.resume)
	require.NoError(t, <-done)

	_, ok := cache.Get(context.Background(), viewKey(id))
	assert.False(t, ok)
	_, err := svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: id})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByID_ReadRacingRenameDoesNotCacheOldName(t *testing.T) {
	svc, store, _, id, done := startPausedRead(t)

	_, err := svc.Update(context.Background(), cqrs.UpdateUserCommand{UserID: id, Username: "alice2"})
	require.NoError(t, err)
	close(store.resume)
	require.NoError(t, <-done)

	view, err := svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: id})
	require.NoError(t, err)
	assert.Equal(t, "alice2", view.Username)
}

func TestUpdate_EvictsCachedView(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "alice", "a@x.com", "pw")
	_, err := f.svc.FindByID(context.Background(), cqrs.GetUserQuery{UserID: created.ID})
	require.NoError(t, err)
	_, ok := f.cache.Get(context.Background(), viewKey(created.ID))
	require.True(t, ok)

	_, err = f.svc.Update(context.Background(), cqrs.UpdateUserCommand{UserID: created.ID, Username: "alice2"})
	require.NoError(t, err)

	_, ok = f.cache.Get(context.Background(), viewKey(created.ID))
	assert.False(t, ok)
}
