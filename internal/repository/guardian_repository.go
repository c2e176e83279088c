package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/moffermann/school-attendance-sub001/internal/models"
)

// GuardianRepository reads guardians and their notification preferences.
type GuardianRepository struct {
	db *sqlx.DB
}

// NewGuardianRepository constructs a GuardianRepository.
func NewGuardianRepository(db *sqlx.DB) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// ListByStudent returns the guardians responsible for a student.
func (r *GuardianRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Guardian, error) {
	const query = `SELECT g.id, g.full_name, g.national_id, g.email, g.phone, g.created_at
        FROM guardians g
        JOIN student_guardians sg ON sg.guardian_id = g.id
        WHERE sg.student_id = $1
        ORDER BY g.full_name ASC`
	var guardians []models.Guardian
	if err := r.db.SelectContext(ctx, &guardians, query, studentID); err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	return guardians, nil
}

// GetPreference returns the guardian's stored preference for a category, or
// nil when the guardian never configured one.
func (r *GuardianRepository) GetPreference(ctx context.Context, guardianID, category string) (*models.ChannelPreference, error) {
	var pref models.ChannelPreference
	err := r.db.GetContext(ctx, &pref,
		"SELECT * FROM channel_preferences WHERE guardian_id = $1 AND category = $2", guardianID, category)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel preference: %w", err)
	}
	return &pref, nil
}
