package settlement

import (
	"github.com/Sonarrati/Cryptra-App/pkg/taskname"
)

const TypeDailySettlement = taskname.SettlementDailyRun

type DailySettlementPayload struct {
	Date string `json:"date"`
}
