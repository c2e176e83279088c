package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
)

type mockWithdrawalRepo struct {
	withdrawals map[string]models.StudentWithdrawal
	created     []string
	completeErr error
}

func (m *mockWithdrawalRepo) Create(ctx context.Context, w *models.StudentWithdrawal) error {
	if m.withdrawals == nil {
		m.withdrawals = make(map[string]models.StudentWithdrawal)
	}
	if w.ID == "" {
		w.ID = "w-" + w.StudentID
	}
	m.withdrawals[w.ID] = *w
	m.created = append(m.created, w.ID)
	return nil
}

func (m *mockWithdrawalRepo) FindByID(ctx context.Context, id string) (*models.StudentWithdrawal, error) {
	if w, ok := m.withdrawals[id]; ok {
		return &w, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWithdrawalRepo) FindDetailByID(ctx context.Context, id string) (*models.WithdrawalDetail, error) {
	if w, ok := m.withdrawals[id]; ok {
		return &models.WithdrawalDetail{StudentWithdrawal: w, StudentName: "Ana Rojas"}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWithdrawalRepo) FindActiveByStudent(ctx context.Context, studentID string) (*models.StudentWithdrawal, error) {
	for _, w := range m.withdrawals {
		if w.StudentID == studentID && !w.Status.Terminal() {
			found := w
			return &found, nil
		}
	}
	return nil, nil
}

func (m *mockWithdrawalRepo) MarkVerified(ctx context.Context, id string, method models.VerificationMethod, verifiedBy, photoPath *string, verifiedAt time.Time) error {
	w, ok := m.withdrawals[id]
	if !ok || w.Status != models.WithdrawalInitiated {
		return appErrors.ErrInvalidTransition
	}
	w.Status = models.WithdrawalVerified
	w.Method = &method
	w.VerifiedAt = &verifiedAt
	m.withdrawals[id] = w
	return nil
}

func (m *mockWithdrawalRepo) Complete(ctx context.Context, id string, signaturePath, reason *string, completedAt time.Time) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	w, ok := m.withdrawals[id]
	if !ok || w.Status != models.WithdrawalVerified {
		return appErrors.ErrInvalidTransition
	}
	w.Status = models.WithdrawalCompleted
	w.CompletedAt = &completedAt
	m.withdrawals[id] = w
	return nil
}

func (m *mockWithdrawalRepo) CreateCompleted(ctx context.Context, w *models.StudentWithdrawal) error {
	for _, existing := range m.withdrawals {
		if existing.StudentID == w.StudentID && existing.Status == models.WithdrawalCompleted {
			return appErrors.ErrWithdrawalConflict
		}
	}
	return m.Create(ctx, w)
}

func (m *mockWithdrawalRepo) Cancel(ctx context.Context, id, cancelledBy, cancelReason string, cancelledAt time.Time) error {
	w, ok := m.withdrawals[id]
	if !ok || w.Status.Terminal() {
		return appErrors.ErrInvalidTransition
	}
	w.Status = models.WithdrawalCancelled
	w.CancelledBy = &cancelledBy
	w.CancelReason = &cancelReason
	w.CancelledAt = &cancelledAt
	m.withdrawals[id] = w
	return nil
}

func (m *mockWithdrawalRepo) List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalDetail, int, error) {
	var list []models.WithdrawalDetail
	for _, w := range m.withdrawals {
		list = append(list, models.WithdrawalDetail{StudentWithdrawal: w})
	}
	return list, len(list), nil
}

type stubEligibility struct {
	errs map[string]error
}

func (s *stubEligibility) Validate(ctx context.Context, studentID string, now time.Time, deviceTZ string) error {
	return s.errs[studentID]
}

type stubAuthorizer struct {
	err error
}

func (s *stubAuthorizer) Authorize(ctx context.Context, pickupID, studentID string) error {
	return s.err
}

type linkCall struct {
	withdrawalID string
	pickupID     *string
}

type recordingLinker struct {
	calls []linkCall
	err   error
}

func (r *recordingLinker) LinkIfMatched(ctx context.Context, studentID string, pickupID *string, withdrawalID string, completedAt time.Time) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, linkCall{withdrawalID: withdrawalID, pickupID: pickupID})
	return nil
}

type recordingNotifier struct {
	notified []string
	err      error
}

func (r *recordingNotifier) NotifyCompleted(ctx context.Context, withdrawalID string) error {
	if r.err != nil {
		return r.err
	}
	r.notified = append(r.notified, withdrawalID)
	return nil
}

func withdrawalFixture() (*WithdrawalService, *mockWithdrawalRepo, *recordingLinker, *recordingNotifier) {
	repo := &mockWithdrawalRepo{}
	linker := &recordingLinker{}
	notifier := &recordingNotifier{}
	svc := NewWithdrawalService(repo, &stubEligibility{errs: map[string]error{}}, &stubAuthorizer{}, validator.New(), zap.NewNop()).
		WithCrossLinker(linker).
		WithNotifier(notifier)
	return svc, repo, linker, notifier
}

func TestWithdrawalInitiateCreatesRow(t *testing.T) {
	svc, repo, _, _ := withdrawalFixture()

	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	require.Len(t, result.Withdrawals, 1)
	assert.Empty(t, result.Failures)
	assert.Equal(t, models.WithdrawalInitiated, result.Withdrawals[0].Status)
	assert.Len(t, repo.created, 1)
}

func TestWithdrawalInitiateReusesActiveRow(t *testing.T) {
	svc, repo, _, _ := withdrawalFixture()

	first, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	second, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)

	assert.Equal(t, first.Withdrawals[0].ID, second.Withdrawals[0].ID)
	assert.Len(t, repo.created, 1)
}

func TestWithdrawalInitiateReusesActiveRowAfterWindowCloses(t *testing.T) {
	svc, repo, _, _ := withdrawalFixture()

	first, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)

	// A retry for an in-flight withdrawal returns the same row even when the
	// student is no longer eligible to start a fresh one.
	svc.eligibility.(*stubEligibility).errs["s1"] = appErrors.ErrOutsideClassHours
	second, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	require.Len(t, second.Withdrawals, 1)
	assert.Empty(t, second.Failures)
	assert.Equal(t, first.Withdrawals[0].ID, second.Withdrawals[0].ID)
	assert.Len(t, repo.created, 1)
}

func TestWithdrawalInitiatePartialFailure(t *testing.T) {
	svc, _, _, _ := withdrawalFixture()
	svc.eligibility.(*stubEligibility).errs["s2"] = appErrors.ErrNoEntryToday

	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1", "s2"}})
	require.NoError(t, err)
	assert.Len(t, result.Withdrawals, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "s2", result.Failures[0].StudentID)
	assert.Equal(t, appErrors.ErrNoEntryToday.Code, result.Failures[0].Code)
}

func TestWithdrawalInitiateRejectsUnauthorizedPickup(t *testing.T) {
	svc, _, _, _ := withdrawalFixture()
	svc.pickups.(*stubAuthorizer).err = appErrors.ErrPickupNotAuthorized
	pickupID := "p1"

	_, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}, PickupID: &pickupID})
	assert.True(t, appErrors.Is(err, appErrors.ErrPickupNotAuthorized))
}

func TestWithdrawalInitiateAllFailedReturnsError(t *testing.T) {
	svc, repo, _, _ := withdrawalFixture()
	svc.eligibility.(*stubEligibility).errs["s1"] = appErrors.ErrNoEntryToday
	svc.eligibility.(*stubEligibility).errs["s2"] = appErrors.ErrOutsideClassHours

	_, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1", "s2"}})
	assert.True(t, appErrors.Is(err, appErrors.ErrNoEntryToday))
	assert.Empty(t, repo.created)
}

func TestWithdrawalVerifyTransitions(t *testing.T) {
	svc, _, _, _ := withdrawalFixture()
	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	id := result.Withdrawals[0].ID

	verified, err := svc.Verify(context.Background(), id, VerifyRequest{Method: models.VerifyQRScan})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalVerified, verified.Status)
	require.NotNil(t, verified.Method)
	assert.Equal(t, models.VerifyQRScan, *verified.Method)
}

func TestWithdrawalVerifyIdempotent(t *testing.T) {
	svc, _, _, _ := withdrawalFixture()
	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	id := result.Withdrawals[0].ID

	_, err = svc.Verify(context.Background(), id, VerifyRequest{Method: models.VerifyQRScan})
	require.NoError(t, err)
	again, err := svc.Verify(context.Background(), id, VerifyRequest{Method: models.VerifyBiometric})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalVerified, again.Status)
}

func TestWithdrawalCompleteRequiresVerified(t *testing.T) {
	svc, _, _, _ := withdrawalFixture()
	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	id := result.Withdrawals[0].ID

	_, err = svc.Complete(context.Background(), id, CompleteRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestWithdrawalCompleteHappyPath(t *testing.T) {
	svc, _, linker, notifier := withdrawalFixture()
	pickupID := "p1"
	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}, PickupID: &pickupID})
	require.NoError(t, err)
	id := result.Withdrawals[0].ID
	_, err = svc.Verify(context.Background(), id, VerifyRequest{Method: models.VerifyQRScan})
	require.NoError(t, err)

	completed, err := svc.Complete(context.Background(), id, CompleteRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
	require.Len(t, linker.calls, 1)
	assert.Equal(t, id, linker.calls[0].withdrawalID)
	require.NotNil(t, linker.calls[0].pickupID)
	assert.Equal(t, pickupID, *linker.calls[0].pickupID)
	assert.Contains(t, notifier.notified, id)
}

func TestWithdrawalCompleteSurvivesLinkerFailure(t *testing.T) {
	svc, _, linker, notifier := withdrawalFixture()
	linker.err = errors.New("request store down")
	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	id := result.Withdrawals[0].ID
	_, err = svc.Verify(context.Background(), id, VerifyRequest{Method: models.VerifyQRScan})
	require.NoError(t, err)

	completed, err := svc.Complete(context.Background(), id, CompleteRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, completed.Status)
	assert.Contains(t, notifier.notified, id)
}

func TestWithdrawalCompleteWithoutPickupPassesNilToLinker(t *testing.T) {
	svc, _, linker, _ := withdrawalFixture()
	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	id := result.Withdrawals[0].ID
	_, err = svc.Verify(context.Background(), id, VerifyRequest{Method: models.VerifyQRScan})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), id, CompleteRequest{})
	require.NoError(t, err)
	require.Len(t, linker.calls, 1)
	assert.Nil(t, linker.calls[0].pickupID)
}

func TestWithdrawalCompleteConflict(t *testing.T) {
	svc, repo, _, _ := withdrawalFixture()
	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	id := result.Withdrawals[0].ID
	_, err = svc.Verify(context.Background(), id, VerifyRequest{Method: models.VerifyQRScan})
	require.NoError(t, err)

	repo.completeErr = appErrors.ErrWithdrawalConflict
	_, err = svc.Complete(context.Background(), id, CompleteRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrWithdrawalConflict))
}

func TestWithdrawalCancelRequiresReason(t *testing.T) {
	svc, _, _, _ := withdrawalFixture()
	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	id := result.Withdrawals[0].ID

	_, err = svc.Cancel(context.Background(), id, CancelRequest{CancelledBy: "u1", Reason: "too short"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestWithdrawalCancelFromVerified(t *testing.T) {
	svc, _, _, _ := withdrawalFixture()
	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	id := result.Withdrawals[0].ID
	_, err = svc.Verify(context.Background(), id, VerifyRequest{Method: models.VerifyQRScan})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), id, CancelRequest{CancelledBy: "u1", Reason: "guardian changed their mind"})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCancelled, cancelled.Status)
}

func TestWithdrawalCancelTerminalRejected(t *testing.T) {
	svc, _, _, _ := withdrawalFixture()
	result, err := svc.Initiate(context.Background(), InitiateRequest{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	id := result.Withdrawals[0].ID
	_, err = svc.Verify(context.Background(), id, VerifyRequest{Method: models.VerifyQRScan})
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), id, CompleteRequest{})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), id, CancelRequest{CancelledBy: "u1", Reason: "attempting to cancel a done pickup"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestWithdrawalAdminOverride(t *testing.T) {
	svc, _, linker, notifier := withdrawalFixture()
	pickupID := "p1"
	signature := "evidence/w1/signature.png"

	withdrawal, err := svc.AdminOverride(context.Background(), AdminOverrideRequest{
		StudentID:     "s1",
		AdminID:       "admin-1",
		Reason:        "guardian collected during evacuation drill",
		PickupID:      &pickupID,
		SignaturePath: &signature,
	})
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, withdrawal.Status)
	require.NotNil(t, withdrawal.Method)
	assert.Equal(t, models.VerifyAdminOverride, *withdrawal.Method)
	require.NotNil(t, withdrawal.SignaturePath)
	assert.Equal(t, signature, *withdrawal.SignaturePath)
	require.Len(t, linker.calls, 1)
	assert.Equal(t, withdrawal.ID, linker.calls[0].withdrawalID)
	require.NotNil(t, linker.calls[0].pickupID)
	assert.Equal(t, pickupID, *linker.calls[0].pickupID)
	assert.Contains(t, notifier.notified, withdrawal.ID)
}

func TestWithdrawalAdminOverrideWithoutPickupPassesNilToLinker(t *testing.T) {
	svc, _, linker, _ := withdrawalFixture()

	_, err := svc.AdminOverride(context.Background(), AdminOverrideRequest{
		StudentID: "s1",
		AdminID:   "admin-1",
		Reason:    "guardian collected during evacuation drill",
	})
	require.NoError(t, err)
	require.Len(t, linker.calls, 1)
	assert.Nil(t, linker.calls[0].pickupID)
}

func TestWithdrawalAdminOverrideConflict(t *testing.T) {
	svc, _, _, _ := withdrawalFixture()

	_, err := svc.AdminOverride(context.Background(), AdminOverrideRequest{
		StudentID: "s1", AdminID: "admin-1", Reason: "first override of the day",
	})
	require.NoError(t, err)

	_, err = svc.AdminOverride(context.Background(), AdminOverrideRequest{
		StudentID: "s1", AdminID: "admin-1", Reason: "second override must conflict",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrWithdrawalConflict))
}
