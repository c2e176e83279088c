package models

import "time"

// Guardian is an adult responsible for one or more students.
type Guardian struct {
	ID         string    `db:"id" json:"id"`
	FullName   string    `db:"full_name" json:"full_name"`
	NationalID *string   `db:"national_id" json:"national_id,omitempty"`
	Email      *string   `db:"email" json:"email,omitempty"`
	Phone      *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChannelPreference stores a guardian's per-category channel opt-ins.
// Guardians without a stored row default to both channels enabled.
type ChannelPreference struct {
	GuardianID      string `db:"guardian_id" json:"guardian_id"`
	Category        string `db:"category" json:"category"`
	EmailEnabled    bool   `db:"email_enabled" json:"email_enabled"`
	WhatsappEnabled bool   `db:"whatsapp_enabled" json:"whatsapp_enabled"`
}
