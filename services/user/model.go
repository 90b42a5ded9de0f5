package user

import (
	"crypto/rand"
	"math/big"
	"time"
)

type User struct {
	ID        string    `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`

	Email string `gorm:"column:email;uniqueIndex;type:varchar(255);not null"`

	TotalBalance          float64 `gorm:"column:total_balance;type:decimal(12,2);not null;default:0"`
	EarnedBalance         float64 `gorm:"column:earned_balance;type:decimal(12,2);not null;default:0"`
	WithdrawnBalance      float64 `gorm:"column:withdrawn_balance;type:decimal(12,2);not null;default:0"`
	TotalReferralEarnings float64 `gorm:"column:total_referral_earnings;type:decimal(12,2);not null;default:0"`

	DailyStreak      int    `gorm:"column:daily_streak;not null;default:0"`
	LastCheckin      string `gorm:"column:last_checkin;type:varchar(10)"`
	IsActive         bool   `gorm:"column:is_active;not null;default:false"`
	LastActivityDate string `gorm:"column:last_activity_date;type:varchar(10);index"`

	ReferralCode string `gorm:"column:referral_code;uniqueIndex;type:varchar(12);not null"`
}

func (User) TableName() string {
	return "users"
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateReferralCode returns a 6-character share code.
func GenerateReferralCode() (string, error) {
	b := make([]byte, 6)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[num.Int64()]
	}
	return string(b), nil
}
