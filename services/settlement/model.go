package settlement

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Job tracks one settlement run for a date. Re-running a date creates a new
// row; the snapshot upsert and commission uniqueness keep payouts single.
type Job struct {
	ID        string    `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt time.Time `gorm:"column:created_at"`

	Date        string     `gorm:"column:date;type:varchar(10);index;not null"`
	Status      JobStatus  `gorm:"column:status;type:varchar(20);not null"`
	ActiveUsers int        `gorm:"column:active_users;not null;default:0"`
	Settled     int        `gorm:"column:settled;not null;default:0"`
	Failed      int        `gorm:"column:failed;not null;default:0"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`

	// FailedUsers lists the user IDs whose settlement errored, for the
	// next run's operator to inspect.
	FailedUsers datatypes.JSON `gorm:"column:failed_users"`
}

func (Job) TableName() string {
	return "settlement_jobs"
}
