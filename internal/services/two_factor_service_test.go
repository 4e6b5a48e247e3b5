package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/authguard/internal/auth"
	"github.com/BradenHooton/authguard/internal/models"
	"github.com/BradenHooton/authguard/internal/services"
	"github.com/BradenHooton/authguard/internal/store"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTwoFactorService(t *testing.T, kv store.KVStore, clock *fakeClock) (*services.TwoFactorService, *services.BackupCodeVault) {
	t.Helper()
	tm, err := auth.NewTOTPManager("AuthGuard")
	require.NoError(t, err)
	vault := newTestVault(kv, clock)
	return services.NewTwoFactorService(vault, tm, discardLogger()), vault
}

func TestTwoFactorService_EnableAndStatus(t *testing.T) {
	svc, _ := newTestTwoFactorService(t, store.NewMemoryStore(), newFakeClock())
	ctx := context.Background()

	status, err := svc.Status(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, status.Enabled)

	enrollment, err := svc.Enable(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.QRCode, "data:image/png;base64,")
	assert.Len(t, enrollment.BackupCodes, 10)

	status, err = svc.Status(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, 10, status.RemainingBackupCodes)
	assert.False(t, status.BackupCodesLow)
	assert.NotNil(t, status.GeneratedAt)
}

func TestTwoFactorService_VerifyTOTP(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newTestTwoFactorService(t, store.NewMemoryStore(), clock)
	ctx := context.Background()

	enrollment, err := svc.Enable(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, clock.Now())
	require.NoError(t, err)

	method, err := svc.Verify(ctx, "alice", code)
	require.NoError(t, err)
	assert.Equal(t, models.SecondFactorTOTP, method)

	// Same code again inside the replay window
	method, err = svc.Verify(ctx, "alice", code)
	assert.ErrorIs(t, err, models.ErrCodeReplay)
	assert.Equal(t, models.SecondFactorNone, method)

	clock.Advance(2 * time.Minute)
	code, err = totp.GenerateCode(enrollment.Secret, clock.Now())
	require.NoError(t, err)
	method, err = svc.Verify(ctx, "alice", code)
	require.NoError(t, err)
	assert.Equal(t, models.SecondFactorTOTP, method)
}

func TestTwoFactorService_VerifyBackupCode(t *testing.T) {
	svc, vault := newTestTwoFactorService(t, store.NewMemoryStore(), newFakeClock())
	ctx := context.Background()

	enrollment, err := svc.Enable(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	method, err := svc.Verify(ctx, "alice", enrollment.BackupCodes[0])
	require.NoError(t, err)
	assert.Equal(t, models.SecondFactorBackupCode, method)
	assert.Equal(t, 9, vault.RemainingCount(ctx, "alice"))

	_, err = svc.Verify(ctx, "alice", enrollment.BackupCodes[0])
	assert.ErrorIs(t, err, models.ErrTwoFactorInvalidCode)
}

func TestTwoFactorService_VerifyInvalidCode(t *testing.T) {
	svc, _ := newTestTwoFactorService(t, store.NewMemoryStore(), newFakeClock())
	ctx := context.Background()

	_, err := svc.Enable(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	method, err := svc.Verify(ctx, "alice", "not-a-code")
	assert.ErrorIs(t, err, models.ErrTwoFactorInvalidCode)
	assert.Equal(t, models.SecondFactorNone, method)
}

func TestTwoFactorService_VerifyNotEnabled(t *testing.T) {
	svc, _ := newTestTwoFactorService(t, store.NewMemoryStore(), newFakeClock())

	_, err := svc.Verify(context.Background(), "alice", "123456")
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}

func TestTwoFactorService_Disable(t *testing.T) {
	kv := store.NewMemoryStore()
	svc, vault := newTestTwoFactorService(t, kv, newFakeClock())
	ctx := context.Background()

	enrollment, err := svc.Enable(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.Disable(ctx, "alice"))

	status, err := svc.Status(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Equal(t, 0, vault.RemainingCount(ctx, "alice"))
	assert.Equal(t, 0, kv.Len())

	_, err = svc.Verify(ctx, "alice", enrollment.BackupCodes[0])
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}

func TestTwoFactorService_StatusRunningLow(t *testing.T) {
	svc, vault := newTestTwoFactorService(t, store.NewMemoryStore(), newFakeClock())
	ctx := context.Background()

	enrollment, err := svc.Enable(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	for _, code := range enrollment.BackupCodes[:7] {
		consumed, err := vault.Consume(ctx, "alice", code)
		require.NoError(t, err)
		require.True(t, consumed)
	}

	status, err := svc.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, status.RemainingBackupCodes)
	assert.True(t, status.BackupCodesLow)
}

func TestTwoFactorService_StatusReadFailure(t *testing.T) {
	kv := NewMockKVStore()
	kv.FailReads()
	svc, _ := newTestTwoFactorService(t, kv, newFakeClock())

	_, err := svc.Status(context.Background(), "alice")
	assert.ErrorIs(t, err, models.ErrBackupCodeUnavailable)
}
