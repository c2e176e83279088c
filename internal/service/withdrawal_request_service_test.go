package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
)

type mockRequestRepo struct {
	requests map[string]models.WithdrawalRequest
	expired  int64
}

func (m *mockRequestRepo) Create(ctx context.Context, req *models.WithdrawalRequest) error {
	if m.requests == nil {
		m.requests = make(map[string]models.WithdrawalRequest)
	}
	if req.ID == "" {
		req.ID = "r-" + req.StudentID
	}
	m.requests[req.ID] = *req
	return nil
}

func (m *mockRequestRepo) FindByID(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	if r, ok := m.requests[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRequestRepo) ExistsActive(ctx context.Context, studentID string, scheduledDate time.Time) (bool, error) {
	for _, r := range m.requests {
		if r.StudentID == studentID && r.ScheduledDate.Equal(scheduledDate) && r.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRequestRepo) FindApprovedForDate(ctx context.Context, studentID, pickupID string, scheduledDate time.Time) (*models.WithdrawalRequest, error) {
	for _, r := range m.requests {
		if r.StudentID == studentID && r.PickupID == pickupID && r.ScheduledDate.Equal(scheduledDate) && r.Status == models.RequestApproved {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func (m *mockRequestRepo) UpdateReview(ctx context.Context, id string, status models.RequestStatus, reviewedBy string, notes *string, reviewedAt time.Time) error {
	r, ok := m.requests[id]
	if !ok || r.Status != models.RequestPending {
		return appErrors.ErrInvalidTransition
	}
	r.Status = status
	r.ReviewedBy = &reviewedBy
	r.ReviewNotes = notes
	r.ReviewedAt = &reviewedAt
	m.requests[id] = r
	return nil
}

func (m *mockRequestRepo) UpdateStatus(ctx context.Context, id string, from []models.RequestStatus, to models.RequestStatus) error {
	r, ok := m.requests[id]
	if !ok {
		return appErrors.ErrInvalidTransition
	}
	for _, f := range from {
		if r.Status == f {
			r.Status = to
			m.requests[id] = r
			return nil
		}
	}
	return appErrors.ErrInvalidTransition
}

func (m *mockRequestRepo) MarkCompleted(ctx context.Context, id, withdrawalID string) error {
	r, ok := m.requests[id]
	if !ok || r.Status != models.RequestApproved {
		return appErrors.ErrInvalidTransition
	}
	r.Status = models.RequestCompleted
	r.WithdrawalID = &withdrawalID
	m.requests[id] = r
	return nil
}

func (m *mockRequestRepo) ExpirePending(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for id, r := range m.requests {
		if r.Status == models.RequestPending && r.ScheduledDate.Before(before) {
			r.Status = models.RequestExpired
			m.requests[id] = r
			n++
		}
	}
	m.expired += n
	return n, nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter models.WithdrawalRequestFilter) ([]models.WithdrawalRequest, int, error) {
	var list []models.WithdrawalRequest
	for _, r := range m.requests {
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.DateFrom != nil && r.ScheduledDate.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && r.ScheduledDate.After(*filter.DateTo) {
			continue
		}
		list = append(list, r)
	}
	return list, len(list), nil
}

func requestFixture() (*WithdrawalRequestService, *mockRequestRepo) {
	repo := &mockRequestRepo{}
	svc := NewWithdrawalRequestService(repo, "America/Santiago", validator.New(), zap.NewNop())
	return svc, repo
}

func createPendingRequest(t *testing.T, svc *WithdrawalRequestService, studentID, date string) *models.WithdrawalRequest {
	t.Helper()
	request, err := svc.Create(context.Background(), CreateRequestRequest{
		StudentID:     studentID,
		PickupID:      "p1",
		RequestedBy:   "guardian-1",
		ScheduledDate: date,
	})
	require.NoError(t, err)
	return request
}

func TestRequestCreatePending(t *testing.T) {
	svc, _ := requestFixture()

	request := createPendingRequest(t, svc, "s1", "2026-03-02")
	assert.Equal(t, models.RequestPending, request.Status)
	assert.Equal(t, "2026-03-02", request.ScheduledDate.Format("2006-01-02"))
}

func TestRequestCreateRejectsDuplicateActive(t *testing.T) {
	svc, _ := requestFixture()
	createPendingRequest(t, svc, "s1", "2026-03-02")

	_, err := svc.Create(context.Background(), CreateRequestRequest{
		StudentID:     "s1",
		PickupID:      "p2",
		RequestedBy:   "guardian-2",
		ScheduledDate: "2026-03-02",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrActiveRequestExists))
}

func TestRequestCreateAllowsSameStudentOtherDate(t *testing.T) {
	svc, _ := requestFixture()
	createPendingRequest(t, svc, "s1", "2026-03-02")

	_, err := svc.Create(context.Background(), CreateRequestRequest{
		StudentID:     "s1",
		PickupID:      "p1",
		RequestedBy:   "guardian-1",
		ScheduledDate: "2026-03-03",
	})
	require.NoError(t, err)
}

func TestRequestReviewApprove(t *testing.T) {
	svc, _ := requestFixture()
	request := createPendingRequest(t, svc, "s1", "2026-03-02")

	reviewed, err := svc.Review(context.Background(), request.ID, ReviewRequest{Approve: true, ReviewedBy: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "admin-1", *reviewed.ReviewedBy)
	assert.NotNil(t, reviewed.ReviewedAt)
}

func TestRequestReviewReject(t *testing.T) {
	svc, _ := requestFixture()
	request := createPendingRequest(t, svc, "s1", "2026-03-02")
	notes := "pickup not recognized by homeroom teacher"

	reviewed, err := svc.Review(context.Background(), request.ID, ReviewRequest{ReviewedBy: "admin-1", Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, reviewed.Status)
}

func TestRequestReviewTwiceRejected(t *testing.T) {
	svc, _ := requestFixture()
	request := createPendingRequest(t, svc, "s1", "2026-03-02")

	_, err := svc.Review(context.Background(), request.ID, ReviewRequest{Approve: true, ReviewedBy: "admin-1"})
	require.NoError(t, err)
	_, err = svc.Review(context.Background(), request.ID, ReviewRequest{Approve: true, ReviewedBy: "admin-2"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestRequestCancelApproved(t *testing.T) {
	svc, _ := requestFixture()
	request := createPendingRequest(t, svc, "s1", "2026-03-02")
	_, err := svc.Review(context.Background(), request.ID, ReviewRequest{Approve: true, ReviewedBy: "admin-1"})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCancelled, cancelled.Status)
}

func TestRequestCancelRejectedIsInvalid(t *testing.T) {
	svc, _ := requestFixture()
	request := createPendingRequest(t, svc, "s1", "2026-03-02")
	_, err := svc.Review(context.Background(), request.ID, ReviewRequest{ReviewedBy: "admin-1"})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), request.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestRequestLinkIfMatchedCompletesApproved(t *testing.T) {
	svc, repo := requestFixture()
	request := createPendingRequest(t, svc, "s1", "2026-03-02")
	_, err := svc.Review(context.Background(), request.ID, ReviewRequest{Approve: true, ReviewedBy: "admin-1"})
	require.NoError(t, err)

	// 18:00 UTC on the scheduled day is 15:00 in Santiago.
	completedAt := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	pickupID := "p1"
	err = svc.LinkIfMatched(context.Background(), "s1", &pickupID, "w1", completedAt)
	require.NoError(t, err)

	linked := repo.requests[request.ID]
	assert.Equal(t, models.RequestCompleted, linked.Status)
	require.NotNil(t, linked.WithdrawalID)
	assert.Equal(t, "w1", *linked.WithdrawalID)
}

func TestRequestLinkIfMatchedIgnoresPending(t *testing.T) {
	svc, repo := requestFixture()
	request := createPendingRequest(t, svc, "s1", "2026-03-02")

	completedAt := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	pickupID := "p1"
	err := svc.LinkIfMatched(context.Background(), "s1", &pickupID, "w1", completedAt)
	require.NoError(t, err)

	assert.Equal(t, models.RequestPending, repo.requests[request.ID].Status)
}

func TestRequestLinkIfMatchedNoPickupNeverLinks(t *testing.T) {
	svc, repo := requestFixture()
	request := createPendingRequest(t, svc, "s1", "2026-03-02")
	_, err := svc.Review(context.Background(), request.ID, ReviewRequest{Approve: true, ReviewedBy: "admin-1"})
	require.NoError(t, err)

	// A completion without a registered pickup cannot fulfil a request, even
	// when one is approved for the same student and day.
	completedAt := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	require.NoError(t, svc.LinkIfMatched(context.Background(), "s1", nil, "w1", completedAt))
	assert.Equal(t, models.RequestApproved, repo.requests[request.ID].Status)
	assert.Nil(t, repo.requests[request.ID].WithdrawalID)
}

func TestRequestLinkIfMatchedDifferentPickupNoMatch(t *testing.T) {
	svc, repo := requestFixture()
	request := createPendingRequest(t, svc, "s1", "2026-03-02")
	_, err := svc.Review(context.Background(), request.ID, ReviewRequest{Approve: true, ReviewedBy: "admin-1"})
	require.NoError(t, err)

	completedAt := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	otherPickup := "other-pickup"
	require.NoError(t, svc.LinkIfMatched(context.Background(), "s1", &otherPickup, "w1", completedAt))
	assert.Equal(t, models.RequestApproved, repo.requests[request.ID].Status)

	pickupID := "p1"
	require.NoError(t, svc.LinkIfMatched(context.Background(), "s1", &pickupID, "w1", completedAt))
	assert.Equal(t, models.RequestCompleted, repo.requests[request.ID].Status)
}

func TestRequestLinkIfMatchedNoRequestIsNoop(t *testing.T) {
	svc, _ := requestFixture()

	pickupID := "p1"
	err := svc.LinkIfMatched(context.Background(), "s1", &pickupID, "w1", time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
}

func TestRequestExpireOverdue(t *testing.T) {
	svc, repo := requestFixture()
	overdue := createPendingRequest(t, svc, "s1", "2026-03-02")
	upcoming := createPendingRequest(t, svc, "s2", "2026-03-10")

	svc.now = func() time.Time { return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC) }
	swept, err := svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)
	assert.Equal(t, models.RequestExpired, repo.requests[overdue.ID].Status)
	assert.Equal(t, models.RequestPending, repo.requests[upcoming.ID].Status)
}

func TestRequestGetNotFound(t *testing.T) {
	svc, _ := requestFixture()

	_, err := svc.Get(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
