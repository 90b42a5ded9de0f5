package activity

import (
	"github.com/Sonarrati/Cryptra-App/services/wallet"
)

// DailyLimits caps each reward activity per user per UTC day. Check-ins are
// limited implicitly by the streak logic.
var DailyLimits = map[wallet.EarningType]int64{
	wallet.TypeWatch:    20,
	wallet.TypeScratch:  3,
	wallet.TypeTreasure: 1,
	wallet.TypeTask:     10,
}

type rewardRange struct {
	Min float64
	Max float64
}

var rewardRanges = map[wallet.EarningType]rewardRange{
	wallet.TypeWatch:    {Min: 0.10, Max: 0.20},
	wallet.TypeScratch:  {Min: 0.05, Max: 0.50},
	wallet.TypeTreasure: {Min: 0.20, Max: 2.00},
}

// Check-in rewards grow linearly with the streak and cap at streak 7.
const (
	CheckinBaseReward = 0.10
	CheckinStepReward = 0.15
	CheckinMaxReward  = 1.00
)

// Result describes one completed reward activity.
type Result struct {
	Type   wallet.EarningType `json:"type"`
	Amount float64            `json:"amount"`
}

// CheckInResult carries the streak state after a successful check-in.
type CheckInResult struct {
	Streak int     `json:"streak"`
	Reward float64 `json:"reward"`
	Date   string  `json:"date"`
}
