package referral

import (
	"github.com/Sonarrati/Cryptra-App/pkg/taskname"
)

const TypeDistributeCommission = taskname.CommissionDistribute

// DistributePayload carries one per-earning distribution job.
type DistributePayload struct {
	EarningID string  `json:"earning_id"`
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	Date      string  `json:"date"`
}
