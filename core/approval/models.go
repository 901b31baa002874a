package approval

import "time"

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Fact is the approved aggregate of a district. It holds the counts of the latest approved submission
// for that district: each approval overwrites the totals, they are not summed.
type Fact struct {
	DistrictID      int       `json:"district_id" db:"district_id"`
	District        string    `json:"district" db:"district"`
	EnrollmentTotal int       `json:"enrollment_total" db:"enrollment_total"`
	TeachersTotal   int       `json:"teachers_total" db:"teachers_total"`
	Approved        bool      `json:"approved" db:"approved"`
	SubmissionID    int       `json:"submission_id" db:"submission_id"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// Activity is one entry of the review audit log.
type Activity struct {
	ID           int       `json:"id" db:"id"`
	Admin        string    `json:"admin" db:"admin"`
	Action       string    `json:"action" db:"action"`
	SubmissionID int       `json:"submission_id" db:"submission_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
}
