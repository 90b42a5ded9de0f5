package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Sonarrati/Cryptra-App/pkg/config"
	"github.com/Sonarrati/Cryptra-App/pkg/dateutil"
	"github.com/Sonarrati/Cryptra-App/services/referral"
	"github.com/Sonarrati/Cryptra-App/services/testutil"
	"github.com/Sonarrati/Cryptra-App/services/user"
	"github.com/Sonarrati/Cryptra-App/services/wallet"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc      *Service
	referral *referral.Service
	wallet   *wallet.Service
	engine   *referral.Engine
	db       *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	return newPolicyFixture(t, "daily_aggregate")
}

func newPolicyFixture(t *testing.T, policy string) *fixture {
	db := testutil.NewTestDB(t,
		&user.User{},
		&wallet.Earning{},
		&wallet.Withdrawal{},
		&referral.ReferralEdge{},
		&referral.DailyEarningsSnapshot{},
		&referral.CommissionRecord{},
		&Job{},
	)
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	users := user.NewService(user.ServiceParams{DB: db, Node: node})
	walletSvc := wallet.NewService(wallet.ServiceParams{DB: db, Node: node})
	referralSvc := referral.NewService(referral.ServiceParams{DB: db, Node: node, Users: users})

	cfg := &config.Config{}
	cfg.Commission.Policy = policy
	engine := referral.NewEngine(referral.EngineParams{DB: db, Node: node, Wallet: walletSvc, Config: cfg})

	return &fixture{
		svc:      NewService(ServiceParams{DB: db, Node: node, Wallet: walletSvc, Engine: engine}),
		referral: referralSvc,
		wallet:   walletSvc,
		engine:   engine,
		db:       db,
	}
}

func (f *fixture) seedUser(t *testing.T, id string) *user.User {
	t.Helper()
	u := &user.User{
		ID:           id,
		Email:        id + "@example.com",
		ReferralCode: "RC" + id,
	}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *fixture) activate(t *testing.T, ids ...string) {
	t.Helper()
	today := dateutil.Today()
	for _, id := range ids {
		require.NoError(t, f.db.Model(&user.User{}).Where("id = ?", id).
			Updates(map[string]any{"is_active": true, "last_activity_date": today}).Error)
	}
}

func (f *fixture) credit(t *testing.T, id string, amount float64, typ wallet.EarningType) {
	t.Helper()
	_, err := f.wallet.Credit(context.Background(), wallet.CreditParams{
		UserID: id,
		Amount: amount,
		Type:   typ,
	})
	require.NoError(t, err)
}

func TestRunSettlesActiveUsers(t *testing.T) {
	f := newFixture(t)

	inviter := f.seedUser(t, "inv")
	invitee := f.seedUser(t, "dow")
	require.NoError(t, f.referral.RecordSignup(context.Background(), invitee.ID, inviter.ReferralCode))

	f.activate(t, inviter.ID, invitee.ID)
	f.credit(t, invitee.ID, 20.00, wallet.TypeWatch)
	// Derived earnings stay out of the settled daily total.
	f.credit(t, invitee.ID, 5.00, wallet.TypeCommission)

	today := dateutil.Today()
	job, err := f.svc.Run(context.Background(), today)
	require.NoError(t, err)
	require.Equal(t, JobSuccess, job.Status)
	require.Equal(t, 2, job.ActiveUsers)
	require.Equal(t, 2, job.Settled)
	require.Equal(t, 0, job.Failed)

	var snap referral.DailyEarningsSnapshot
	require.NoError(t, f.db.Where("user_id = ? AND date = ?", invitee.ID, today).First(&snap).Error)
	require.InDelta(t, 20.00, snap.TotalEarned, 1e-9)

	// 4.5% of 20.00 to the direct inviter.
	var inv user.User
	require.NoError(t, f.db.Where("id = ?", inviter.ID).First(&inv).Error)
	require.InDelta(t, 0.90, inv.TotalReferralEarnings, 1e-9)

	// Activity resets after the run.
	var activeCount int64
	require.NoError(t, f.db.Model(&user.User{}).Where("is_active = ?", true).Count(&activeCount).Error)
	require.Equal(t, int64(0), activeCount)
}

func TestRunSkipsInactiveUsers(t *testing.T) {
	f := newFixture(t)

	u := f.seedUser(t, "idle")
	f.credit(t, u.ID, 10.00, wallet.TypeWatch)

	job, err := f.svc.Run(context.Background(), dateutil.Today())
	require.NoError(t, err)
	require.Equal(t, 0, job.ActiveUsers)

	var snapCount int64
	require.NoError(t, f.db.Model(&referral.DailyEarningsSnapshot{}).Count(&snapCount).Error)
	require.Equal(t, int64(0), snapCount)
}

func TestRunIdempotentOnRerun(t *testing.T) {
	f := newFixture(t)

	inviter := f.seedUser(t, "inv")
	invitee := f.seedUser(t, "dow")
	require.NoError(t, f.referral.RecordSignup(context.Background(), invitee.ID, inviter.ReferralCode))

	f.activate(t, inviter.ID, invitee.ID)
	f.credit(t, invitee.ID, 20.00, wallet.TypeWatch)

	today := dateutil.Today()
	_, err := f.svc.Run(context.Background(), today)
	require.NoError(t, err)

	// Re-activate as after a partial failure and run again.
	f.activate(t, inviter.ID, invitee.ID)
	_, err = f.svc.Run(context.Background(), today)
	require.NoError(t, err)

	var commissions int64
	require.NoError(t, f.db.Model(&referral.CommissionRecord{}).Count(&commissions).Error)
	require.Equal(t, int64(1), commissions)

	// One snapshot per settled user per date, even across re-runs.
	var snapshots int64
	require.NoError(t, f.db.Model(&referral.DailyEarningsSnapshot{}).Count(&snapshots).Error)
	require.Equal(t, int64(2), snapshots)

	var inv user.User
	require.NoError(t, f.db.Where("id = ?", inviter.ID).First(&inv).Error)
	require.InDelta(t, 0.90, inv.TotalReferralEarnings, 1e-9)

	var jobs int64
	require.NoError(t, f.db.Model(&Job{}).Where("date = ?", today).Count(&jobs).Error)
	require.Equal(t, int64(2), jobs)
}

func TestRunDoesNotDistributeUnderPerEarningPolicy(t *testing.T) {
	f := newPolicyFixture(t, "per_earning")

	inviter := f.seedUser(t, "inv")
	invitee := f.seedUser(t, "dow")
	require.NoError(t, f.referral.RecordSignup(context.Background(), invitee.ID, inviter.ReferralCode))
	f.activate(t, inviter.ID, invitee.ID)

	today := dateutil.Today()
	f.credit(t, invitee.ID, 100.00, wallet.TypeWatch)
	// Under this policy the flat bonus pays at earning time.
	require.NoError(t, f.engine.OnEarning(context.Background(), "earn-1", invitee.ID, wallet.TypeWatch, 100, today))

	var inv user.User
	require.NoError(t, f.db.Where("id = ?", inviter.ID).First(&inv).Error)
	require.InDelta(t, 4.50, inv.TotalReferralEarnings, 1e-9)

	job, err := f.svc.Run(context.Background(), today)
	require.NoError(t, err)
	require.Equal(t, JobSuccess, job.Status)

	// Settlement still keeps the snapshot books.
	var snap referral.DailyEarningsSnapshot
	require.NoError(t, f.db.Where("user_id = ? AND date = ?", invitee.ID, today).First(&snap).Error)
	require.InDelta(t, 100.00, snap.TotalEarned, 1e-9)

	// But the upline is never paid a second time under the daily rates.
	require.NoError(t, f.db.Where("id = ?", inviter.ID).First(&inv).Error)
	require.InDelta(t, 4.50, inv.TotalReferralEarnings, 1e-9)

	var commissions int64
	require.NoError(t, f.db.Model(&referral.CommissionRecord{}).Count(&commissions).Error)
	require.Equal(t, int64(1), commissions)
}

func TestRunRetriesFailedUsersNextRun(t *testing.T) {
	f := newFixture(t)

	inviter := f.seedUser(t, "inv")
	invitee := f.seedUser(t, "dow")
	require.NoError(t, f.referral.RecordSignup(context.Background(), invitee.ID, inviter.ReferralCode))
	f.activate(t, inviter.ID, invitee.ID)
	f.credit(t, invitee.ID, 20.00, wallet.TypeWatch)

	// Break snapshot persistence so every per-user settlement fails.
	require.NoError(t, f.db.Migrator().DropTable(&referral.DailyEarningsSnapshot{}))

	today := dateutil.Today()
	job, err := f.svc.Run(context.Background(), today)
	require.NoError(t, err)
	require.Equal(t, JobFailed, job.Status)
	require.Equal(t, 2, job.Failed)

	// Failed users keep their activity flag so the retry can select them.
	var activeCount int64
	require.NoError(t, f.db.Model(&user.User{}).Where("is_active = ?", true).Count(&activeCount).Error)
	require.Equal(t, int64(2), activeCount)

	require.NoError(t, f.db.AutoMigrate(&referral.DailyEarningsSnapshot{}))

	job, err = f.svc.Run(context.Background(), today)
	require.NoError(t, err)
	require.Equal(t, JobSuccess, job.Status)
	require.Equal(t, 2, job.Settled)

	var inv user.User
	require.NoError(t, f.db.Where("id = ?", inviter.ID).First(&inv).Error)
	require.InDelta(t, 0.90, inv.TotalReferralEarnings, 1e-9)

	require.NoError(t, f.db.Model(&user.User{}).Where("is_active = ?", true).Count(&activeCount).Error)
	require.Equal(t, int64(0), activeCount)
}

func TestRunInvalidDate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(context.Background(), "not-a-date")
	require.Error(t, err)
}

func TestNextRunTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 15, 0, 0, time.UTC)

	next := nextRunTime(now, 0, 30)
	require.Equal(t, time.Date(2025, 3, 10, 0, 30, 0, 0, time.UTC), next)

	next = nextRunTime(now, 0, 5)
	require.Equal(t, time.Date(2025, 3, 11, 0, 5, 0, 0, time.UTC), next)
}
