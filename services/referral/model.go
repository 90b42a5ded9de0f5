package referral

import (
	"time"
)

// MaxLevel bounds every upline walk and downline traversal.
const MaxLevel = 7

// ReferralEdge materializes one ancestor of an invitee. Each invitee gets
// between 1 and 7 edges at signup time, frozen afterwards.
type ReferralEdge struct {
	ID        string    `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt time.Time `gorm:"column:created_at"`

	InviterID  string `gorm:"column:inviter_id;index;not null"`
	InviteeID  string `gorm:"column:invitee_id;not null;uniqueIndex:idx_referrals_invitee_level"`
	Level      int    `gorm:"column:level;not null;uniqueIndex:idx_referrals_invitee_level"`
	BonusGiven bool   `gorm:"column:bonus_given;not null;default:false"`
}

func (ReferralEdge) TableName() string {
	return "referrals"
}

// DailyEarningsSnapshot is upserted per (user, date) by the settlement job.
type DailyEarningsSnapshot struct {
	ID          string    `gorm:"column:id;primaryKey;type:char(26)"`
	UserID      string    `gorm:"column:user_id;not null;uniqueIndex:idx_daily_earnings_user_date"`
	Date        string    `gorm:"column:date;type:varchar(10);not null;uniqueIndex:idx_daily_earnings_user_date"`
	TotalEarned float64   `gorm:"column:total_earned;type:decimal(12,2);not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (DailyEarningsSnapshot) TableName() string {
	return "daily_earnings"
}

// CommissionRecord is the append-only audit row for one payout. ReferenceID
// is the triggering earning under the per-earning policy and empty under the
// daily policy, so the unique index both allows repeated per-earning payouts
// and blocks duplicate daily payouts on settlement re-runs.
type CommissionRecord struct {
	ID        string    `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt time.Time `gorm:"column:created_at"`

	InviterID            string  `gorm:"column:inviter_id;index;not null;uniqueIndex:idx_commissions_payout"`
	InviteeID            string  `gorm:"column:invitee_id;not null;uniqueIndex:idx_commissions_payout"`
	Level                int     `gorm:"column:level;not null;uniqueIndex:idx_commissions_payout"`
	Date                 string  `gorm:"column:date;type:varchar(10);not null;uniqueIndex:idx_commissions_payout"`
	ReferenceID          string  `gorm:"column:reference_id;not null;default:'';uniqueIndex:idx_commissions_payout"`
	CommissionRate       float64 `gorm:"column:commission_rate;type:decimal(10,6);not null"`
	InviteeDailyEarnings float64 `gorm:"column:invitee_daily_earnings;type:decimal(12,2);not null"`
	CommissionAmount     float64 `gorm:"column:commission_amount;type:decimal(12,2);not null"`
}

func (CommissionRecord) TableName() string {
	return "referral_commissions"
}

// Stats summarises a user's network for the referral dashboard.
type Stats struct {
	TotalReferrals int         `json:"total_referrals"`
	LevelCounts    map[int]int `json:"level_counts"`
	ActiveCounts   map[int]int `json:"active_counts"`
	TotalEarnings  float64     `json:"total_earnings"`
	TodaysEarnings float64     `json:"todays_earnings"`
}

// DownlineNode is one user in the recursive downline tree.
type DownlineNode struct {
	UserID        string          `json:"user_id"`
	Email         string          `json:"email"`
	IsActive      bool            `json:"is_active"`
	LastActive    string          `json:"last_active"`
	TotalBalance  float64         `json:"total_balance"`
	EarnedBalance float64         `json:"earned_balance"`
	Level         int             `json:"level"`
	Downline      []*DownlineNode `json:"downline"`
}
