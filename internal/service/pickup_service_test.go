package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/moffermann/school-attendance-sub001/internal/models"
	appErrors "github.com/moffermann/school-attendance-sub001/pkg/errors"
)

type mockPickupRepo struct {
	pickups map[string]models.AuthorizedPickup
	links   map[string]map[string]bool
}

func newMockPickupRepo() *mockPickupRepo {
	return &mockPickupRepo{
		pickups: make(map[string]models.AuthorizedPickup),
		links:   make(map[string]map[string]bool),
	}
}

func (m *mockPickupRepo) Create(ctx context.Context, pickup *models.AuthorizedPickup) error {
	if pickup.ID == "" {
		pickup.ID = "p-" + pickup.FullName
	}
	m.pickups[pickup.ID] = *pickup
	return nil
}

func (m *mockPickupRepo) Update(ctx context.Context, pickup *models.AuthorizedPickup) error {
	m.pickups[pickup.ID] = *pickup
	return nil
}

func (m *mockPickupRepo) FindByID(ctx context.Context, id string) (*models.AuthorizedPickup, error) {
	if p, ok := m.pickups[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPickupRepo) GetActive(ctx context.Context, id string) (*models.AuthorizedPickup, error) {
	if p, ok := m.pickups[id]; ok && p.Active {
		return &p, nil
	}
	return nil, nil
}

func (m *mockPickupRepo) IsAuthorizedForStudent(ctx context.Context, pickupID, studentID string) (bool, error) {
	return m.links[pickupID][studentID], nil
}

func (m *mockPickupRepo) AttachStudent(ctx context.Context, link *models.StudentPickup) error {
	if m.links[link.PickupID] == nil {
		m.links[link.PickupID] = make(map[string]bool)
	}
	m.links[link.PickupID][link.StudentID] = true
	return nil
}

func (m *mockPickupRepo) DetachStudent(ctx context.Context, pickupID, studentID string) error {
	delete(m.links[pickupID], studentID)
	return nil
}

func (m *mockPickupRepo) ListForStudent(ctx context.Context, studentID string) ([]models.PickupForStudent, error) {
	var list []models.PickupForStudent
	for pickupID, students := range m.links {
		if students[studentID] {
			list = append(list, models.PickupForStudent{AuthorizedPickup: m.pickups[pickupID]})
		}
	}
	return list, nil
}

func (m *mockPickupRepo) List(ctx context.Context, filter models.PickupFilter) ([]models.AuthorizedPickup, int, error) {
	var list []models.AuthorizedPickup
	for _, p := range m.pickups {
		list = append(list, p)
	}
	return list, len(list), nil
}

func (m *mockPickupRepo) Deactivate(ctx context.Context, id string) error {
	p := m.pickups[id]
	p.Active = false
	m.pickups[id] = p
	return nil
}

func pickupFixture() (*PickupService, *mockPickupRepo) {
	repo := newMockPickupRepo()
	return NewPickupService(repo, validator.New(), zap.NewNop()), repo
}

func TestPickupAuthorizeHappyPath(t *testing.T) {
	svc, repo := pickupFixture()
	repo.pickups["p1"] = models.AuthorizedPickup{ID: "p1", FullName: "Carlos Rojas", Active: true}
	repo.links["p1"] = map[string]bool{"s1": true}

	err := svc.Authorize(context.Background(), "p1", "s1")
	require.NoError(t, err)
}

func TestPickupAuthorizeUnknownPickup(t *testing.T) {
	svc, _ := pickupFixture()

	err := svc.Authorize(context.Background(), "ghost", "s1")
	assert.True(t, appErrors.Is(err, appErrors.ErrPickupNotEligible))
}

func TestPickupAuthorizeInactivePickup(t *testing.T) {
	svc, repo := pickupFixture()
	repo.pickups["p1"] = models.AuthorizedPickup{ID: "p1", FullName: "Carlos Rojas", Active: false}
	repo.links["p1"] = map[string]bool{"s1": true}

	err := svc.Authorize(context.Background(), "p1", "s1")
	assert.True(t, appErrors.Is(err, appErrors.ErrPickupNotEligible))
}

func TestPickupAuthorizeNotLinked(t *testing.T) {
	svc, repo := pickupFixture()
	repo.pickups["p1"] = models.AuthorizedPickup{ID: "p1", FullName: "Carlos Rojas", Active: true}

	err := svc.Authorize(context.Background(), "p1", "s1")
	assert.True(t, appErrors.Is(err, appErrors.ErrPickupNotAuthorized))
}

func TestPickupCreateHashesQRSecret(t *testing.T) {
	svc, repo := pickupFixture()
	secret := "kiosk-qr-secret"

	pickup, err := svc.Create(context.Background(), CreatePickupRequest{
		FullName:     "Carlos Rojas",
		Relationship: "father",
		QRSecret:     &secret,
	})
	require.NoError(t, err)
	require.NotNil(t, pickup.QRCodeHash)
	assert.NotEqual(t, secret, *pickup.QRCodeHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*pickup.QRCodeHash), []byte(secret)))
	assert.True(t, repo.pickups[pickup.ID].Active)
}

func TestPickupCreateWithoutSecret(t *testing.T) {
	svc, _ := pickupFixture()

	pickup, err := svc.Create(context.Background(), CreatePickupRequest{
		FullName:     "Carlos Rojas",
		Relationship: "father",
	})
	require.NoError(t, err)
	assert.Nil(t, pickup.QRCodeHash)
}

func TestPickupCreateRequiresRelationship(t *testing.T) {
	svc, _ := pickupFixture()

	_, err := svc.Create(context.Background(), CreatePickupRequest{FullName: "Carlos Rojas"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestPickupUpdatePreservesQRHash(t *testing.T) {
	svc, _ := pickupFixture()
	secret := "kiosk-qr-secret"
	pickup, err := svc.Create(context.Background(), CreatePickupRequest{
		FullName:     "Carlos Rojas",
		Relationship: "father",
		QRSecret:     &secret,
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), pickup.ID, UpdatePickupRequest{
		FullName:     "Carlos A. Rojas",
		Relationship: "father",
		Active:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Carlos A. Rojas", updated.FullName)
	require.NotNil(t, updated.QRCodeHash)
	assert.Equal(t, *pickup.QRCodeHash, *updated.QRCodeHash)
}

func TestPickupAttachAndDetachStudent(t *testing.T) {
	svc, repo := pickupFixture()
	repo.pickups["p1"] = models.AuthorizedPickup{ID: "p1", FullName: "Carlos Rojas", Active: true}

	_, err := svc.AttachStudent(context.Background(), "p1", AttachStudentRequest{StudentID: "s1", Priority: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Authorize(context.Background(), "p1", "s1"))

	require.NoError(t, svc.DetachStudent(context.Background(), "p1", "s1"))
	err = svc.Authorize(context.Background(), "p1", "s1")
	assert.True(t, appErrors.Is(err, appErrors.ErrPickupNotAuthorized))
}

func TestPickupAttachUnknownPickup(t *testing.T) {
	svc, _ := pickupFixture()

	_, err := svc.AttachStudent(context.Background(), "ghost", AttachStudentRequest{StudentID: "s1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestPickupDeactivateBlocksAuthorization(t *testing.T) {
	svc, repo := pickupFixture()
	repo.pickups["p1"] = models.AuthorizedPickup{ID: "p1", FullName: "Carlos Rojas", Active: true}
	repo.links["p1"] = map[string]bool{"s1": true}

	require.NoError(t, svc.Deactivate(context.Background(), "p1"))
	err := svc.Authorize(context.Background(), "p1", "s1")
	assert.True(t, appErrors.Is(err, appErrors.ErrPickupNotEligible))
}
