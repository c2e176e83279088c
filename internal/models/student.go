package models

import "time"

// Student represents an enrolled student. Students are never hard-deleted;
// deactivation flips the active flag so historical withdrawals stay auditable.
type Student struct {
	ID         string    `db:"id" json:"id"`
	FullName   string    `db:"full_name" json:"full_name"`
	NationalID *string   `db:"national_id" json:"national_id,omitempty"`
	CourseID   *string   `db:"course_id" json:"course_id,omitempty"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail extends the student row with its course name.
type StudentDetail struct {
	Student
	CourseName *string `db:"course_name" json:"course_name,omitempty"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	CourseID  string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
