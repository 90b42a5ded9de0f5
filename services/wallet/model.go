package wallet

import (
	"time"
)

type EarningType string

const (
	TypeWatch      EarningType = "watch"
	TypeScratch    EarningType = "scratch"
	TypeCheckin    EarningType = "checkin"
	TypeTreasure   EarningType = "treasure"
	TypeTask       EarningType = "task"
	TypeReferral   EarningType = "referral"
	TypeCommission EarningType = "commission"
)

func (t EarningType) Valid() bool {
	switch t {
	case TypeWatch, TypeScratch, TypeCheckin, TypeTreasure, TypeTask, TypeReferral, TypeCommission:
		return true
	default:
		return false
	}
}

// Derived reports whether the earning is itself a referral payout. Derived
// earnings never feed back into commission distribution.
func (t EarningType) Derived() bool {
	return t == TypeReferral || t == TypeCommission
}

// Earning is the append-only audit trail for every balance credit.
// Rows are never updated or deleted.
type Earning struct {
	ID          string      `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt   time.Time   `gorm:"column:created_at;index"`
	UserID      string      `gorm:"column:user_id;index;not null"`
	Type        EarningType `gorm:"column:type;type:varchar(20);index;not null"`
	Amount      float64     `gorm:"column:amount;type:decimal(12,2);not null"`
	Level       int         `gorm:"column:level;not null;default:0"`
	Description string      `gorm:"column:description;type:text"`
}

func (Earning) TableName() string {
	return "earnings"
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalPaid     WithdrawalStatus = "paid"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type Withdrawal struct {
	ID              string           `gorm:"column:id;primaryKey;type:char(26)"`
	CreatedAt       time.Time        `gorm:"column:created_at;index"`
	UpdatedAt       time.Time        `gorm:"column:updated_at"`
	UserID          string           `gorm:"column:user_id;index;not null"`
	Reference       string           `gorm:"column:reference;type:varchar(30)"`
	Method          string           `gorm:"column:method;type:varchar(30);not null"`
	Account         string           `gorm:"column:account;type:varchar(100);not null"`
	AmountRequested float64          `gorm:"column:amount_requested;type:decimal(12,2);not null"`
	Fee             float64          `gorm:"column:fee;type:decimal(12,2);not null"`
	NetAmount       float64          `gorm:"column:net_amount;type:decimal(12,2);not null"`
	Status          WithdrawalStatus `gorm:"column:status;type:varchar(20);default:'pending'"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}
