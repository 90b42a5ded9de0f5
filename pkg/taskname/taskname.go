package taskname

const (
	// Commission tasks
	CommissionDistribute = "commission:distribute"

	// Settlement tasks
	SettlementDailyRun = "settlement:daily"
)
