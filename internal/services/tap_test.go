package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/config"
	"github.com/ezvendo/portal/internal/logging"
	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/realtime"
	"github.com/ezvendo/portal/internal/rfid"
)

func newTapService(t *testing.T, cfg *config.Config) (*TapService, *memStore, *recorder) {
	t.Helper()
	store := newMemStore()
	rec := &recorder{}
	return NewTapService(memTx{}, store, fakeTokens{}, rec, cfg, logging.Nop()), store, rec
}

func scanOf(card string) rfid.Scan {
	return rfid.Scan{CardID: card, Timestamp: time.Now()}
}

func phaseOf(t *testing.T, s *TapService, id string) models.TapPhase {
	t.Helper()
	v, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return v.Phase
}

func TestTap_StartCountsDown(t *testing.T) {
	svc, _, rec := newTapService(t, testConfig())

	tap, err := svc.Start(context.Background(), "kiosk-1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseScanning, tap.Phase)
	assert.Equal(t, 30, tap.RemainingSeconds)
	assert.Equal(t, 3, tap.MaxAttempts)
	require.NotNil(t, tap.ExpiresAt)

	last, ok := rec.lastTap(realtime.TapTopic(tap.ID))
	require.True(t, ok)
	assert.Equal(t, models.PhaseScanning, last.Phase)
}

func TestTap_ReaderOwnership(t *testing.T) {
	svc, _, _ := newTapService(t, testConfig())
	ctx := context.Background()

	first, err := svc.Start(ctx, "kiosk-1")
	require.NoError(t, err)

	again, err := svc.Start(ctx, "kiosk-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = svc.Start(ctx, "kiosk-2")
	assert.ErrorIs(t, err, common.ErrReaderBusy)

	_, err = svc.Close(ctx, first.ID)
	require.NoError(t, err)

	_, err = svc.Start(ctx, "kiosk-2")
	assert.NoError(t, err)
}

func TestTap_ScanWithoutTap(t *testing.T) {
	svc, _, _ := newTapService(t, testConfig())

	_, err := svc.HandleScan(context.Background(), scanOf("04A1B2"))
	assert.ErrorIs(t, err, common.ErrNoActiveTap)
}

func TestTap_RegisteredCard(t *testing.T) {
	cfg := testConfig()
	cfg.ResultHold = 50 * time.Millisecond
	svc, store, rec := newTapService(t, cfg)
	u := registeredUser("04A1B2", 1500)
	u.Attempts = 2
	store.put(u)
	ctx := context.Background()

	tap, err := svc.Start(ctx, "kiosk-1")
	require.NoError(t, err)

	id, err := svc.HandleScan(ctx, scanOf("04A1B2"))
	require.NoError(t, err)
	assert.Equal(t, tap.ID, id)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRegistered, got.Phase)
	assert.Equal(t, "Welcome back, Juan Dela Cruz!", got.Message)
	assert.Equal(t, "Juan Dela Cruz", got.FullName)
	assert.Equal(t, "/dashboard", got.RedirectTo)
	assert.Equal(t, "token-04A1B2", got.Token)

	after := store.get("04A1B2")
	assert.Equal(t, 0, after.Attempts)
	assert.NotNil(t, after.LastLogin)

	require.Eventually(t, func() bool {
		return phaseOf(t, svc, id) == models.PhaseClosed
	}, time.Second, 10*time.Millisecond)

	var phases []models.TapPhase
	rec.mu.Lock()
	for _, e := range rec.events {
		phases = append(phases, e.data.(models.Tap).Phase)
	}
	rec.mu.Unlock()
	assert.Equal(t, []models.TapPhase{
		models.PhaseScanning, models.PhaseReading, models.PhaseRegistered, models.PhaseClosed,
	}, phases)
}

func TestTap_UnregisteredUntilAttemptsUsed(t *testing.T) {
	svc, store, _ := newTapService(t, testConfig())
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		_, err := svc.Start(ctx, "kiosk-1")
		require.NoError(t, err)
		id, err := svc.HandleScan(ctx, scanOf("CAFE01"))
		require.NoError(t, err)

		got, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.PhaseUnregistered, got.Phase)
		assert.Equal(t, want, got.Attempt)
		assert.Equal(t, fmt.Sprintf("/register?rfid=CAFE01&attempt=%d", want), got.RedirectTo)
		assert.Empty(t, got.Token)
	}

	_, err := svc.Start(ctx, "kiosk-1")
	require.NoError(t, err)
	id, err := svc.HandleScan(ctx, scanOf("CAFE01"))
	require.NoError(t, err)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAttemptsUsed, got.Phase)
	assert.Equal(t, "Attempts Already Used", got.Message)
	assert.Empty(t, got.RedirectTo)

	u := store.get("CAFE01")
	assert.False(t, u.IsRegistered)
	assert.Equal(t, 4, u.Attempts)
}

func TestTap_AttemptsUsedStaysUntilClosed(t *testing.T) {
	cfg := testConfig()
	cfg.ResultHold = 10 * time.Millisecond
	svc, store, _ := newTapService(t, cfg)
	u := models.User{RFIDCardID: "CAFE01", Attempts: 3, Status: models.StatusPending}
	store.put(u)
	ctx := context.Background()

	_, err := svc.Start(ctx, "kiosk-1")
	require.NoError(t, err)
	id, err := svc.HandleScan(ctx, scanOf("CAFE01"))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, models.PhaseAttemptsUsed, phaseOf(t, svc, id))

	closed, err := svc.Close(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseClosed, closed.Phase)
}

func TestTap_ScanTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ScanTimeout = 30 * time.Millisecond
	svc, _, _ := newTapService(t, cfg)

	tap, err := svc.Start(context.Background(), "kiosk-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return phaseOf(t, svc, tap.ID) == models.PhaseClosed
	}, time.Second, 5*time.Millisecond)

	got, err := svc.Get(context.Background(), tap.ID)
	require.NoError(t, err)
	assert.Equal(t, "Scan timed out", got.Message)

	_, err = svc.HandleScan(context.Background(), scanOf("04A1B2"))
	assert.ErrorIs(t, err, common.ErrNoActiveTap)
}

func TestTap_StoreFailureClosesWithGenericMessage(t *testing.T) {
	svc, store, _ := newTapService(t, testConfig())
	store.err = errors.New("connection refused")
	ctx := context.Background()

	_, err := svc.Start(ctx, "kiosk-1")
	require.NoError(t, err)
	id, err := svc.HandleScan(ctx, scanOf("04A1B2"))
	require.NoError(t, err)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseClosed, got.Phase)
	assert.Equal(t, MsgUnavailable, got.Message)
	assert.Equal(t, 2, store.calls, "lookup retried per policy")

	_, err = svc.Start(ctx, "kiosk-1")
	assert.NoError(t, err, "reader released after failure")
}

func TestTap_CloseUnknownAndTwice(t *testing.T) {
	svc, _, rec := newTapService(t, testConfig())
	ctx := context.Background()

	_, err := svc.Close(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	tap, err := svc.Start(ctx, "kiosk-1")
	require.NoError(t, err)
	_, err = svc.Close(ctx, tap.ID)
	require.NoError(t, err)
	_, err = svc.Close(ctx, tap.ID)
	require.NoError(t, err)

	assert.Len(t, rec.types(realtime.TapTopic(tap.ID)), 2)
}
