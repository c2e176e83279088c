package models

import "time"

// CourseSchedule is a course's regular time window for one weekday.
// Weekday follows time.Weekday numbering (Sunday = 0).
type CourseSchedule struct {
	ID       string `db:"id" json:"id"`
	CourseID string `db:"course_id" json:"course_id"`
	Weekday  int    `db:"weekday" json:"weekday"`
	InTime   string `db:"in_time" json:"in_time"`
	OutTime  string `db:"out_time" json:"out_time"`
}

// ScheduleException overrides the regular schedule for a specific date.
// A nil CourseID scopes the exception to the whole school; nil times mean the
// day has no class (holiday).
type ScheduleException struct {
	ID       string    `db:"id" json:"id"`
	Date     time.Time `db:"date" json:"date"`
	CourseID *string   `db:"course_id" json:"course_id,omitempty"`
	InTime   *string   `db:"in_time" json:"in_time,omitempty"`
	OutTime  *string   `db:"out_time" json:"out_time,omitempty"`
	Label    *string   `db:"label" json:"label,omitempty"`
}

// TimeWindow is the effective entry/exit window resolved for a course+date.
type TimeWindow struct {
	InTime  string `json:"in_time"`
	OutTime string `json:"out_time"`
}

// Course is the minimal course record the withdrawal core depends on.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
