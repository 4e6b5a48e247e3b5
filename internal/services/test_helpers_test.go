package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/authguard/internal/models"
	"github.com/BradenHooton/authguard/internal/retry"
	"github.com/BradenHooton/authguard/internal/services"
	"github.com/BradenHooton/authguard/internal/store"
	"golang.org/x/crypto/bcrypt"
)

var errBackendDown = models.Classify(models.ClassUnavailable, errors.New("backend down"))

// MockKVStore delegates to an in-memory store unless a Func field is set
type MockKVStore struct {
	*store.MemoryStore
	GetFunc    func(ctx context.Context, key string) (string, bool, error)
	SetFunc    func(ctx context.Context, key, value string) error
	DeleteFunc func(ctx context.Context, key string) error

	mu   sync.Mutex
	sets int
}

func NewMockKVStore() *MockKVStore {
	return &MockKVStore{MemoryStore: store.NewMemoryStore()}
}

func (m *MockKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return m.MemoryStore.Get(ctx, key)
}

func (m *MockKVStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	m.sets++
	m.mu.Unlock()
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value)
	}
	return m.MemoryStore.Set(ctx, key, value)
}

func (m *MockKVStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return m.MemoryStore.Delete(ctx, key)
}

// SetCount reports how many Set calls reached the store
func (m *MockKVStore) SetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// FailReads makes every Get fail with a transient error
func (m *MockKVStore) FailReads() {
	m.GetFunc = func(context.Context, string) (string, bool, error) {
		return "", false, errBackendDown
	}
}

// FailWrites makes every Set and Delete fail with a transient error
func (m *MockKVStore) FailWrites() {
	m.SetFunc = func(context.Context, string, string) error { return errBackendDown }
	m.DeleteFunc = func(context.Context, string) error { return errBackendDown }
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockAuthenticator implements services.Authenticator for testing
type MockAuthenticator struct {
	SignInFunc             func(ctx context.Context, identifier, password string) (*models.SignInResult, error)
	VerifySecondFactorFunc func(ctx context.Context, challengeID, code string) (*models.SignInResult, error)

	mu          sync.Mutex
	signInCalls int
}

func (m *MockAuthenticator) SignIn(ctx context.Context, identifier, password string) (*models.SignInResult, error) {
	m.mu.Lock()
	m.signInCalls++
	m.mu.Unlock()
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, identifier, password)
	}
	return &models.SignInResult{UserID: identifier, SessionToken: "session"}, nil
}

func (m *MockAuthenticator) VerifySecondFactor(ctx context.Context, challengeID, code string) (*models.SignInResult, error) {
	if m.VerifySecondFactorFunc != nil {
		return m.VerifySecondFactorFunc(ctx, challengeID, code)
	}
	return &models.SignInResult{UserID: "user", SessionToken: "session"}, nil
}

func (m *MockAuthenticator) SignInCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signInCalls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// instantRetrier retries without sleeping
func instantRetrier() *retry.Executor {
	return retry.NewExecutor(
		retry.WithLogger(discardLogger()),
		retry.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
}

func testOptions(clock *fakeClock) []services.Option {
	return []services.Option{
		services.WithClock(clock.Now),
		services.WithRetryExecutor(instantRetrier()),
	}
}

func testBackupCodeConfig() services.BackupCodeConfig {
	return services.BackupCodeConfig{
		Count:        10,
		LowThreshold: 3,
		HashCost:     bcrypt.MinCost,
	}
}
