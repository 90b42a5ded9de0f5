package activity

import (
	"context"
	"fmt"
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

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	db := testutil.NewTestDB(t,
		&user.User{},
		&wallet.Earning{},
		&wallet.Withdrawal{},
		&referral.ReferralEdge{},
		&referral.CommissionRecord{},
	)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	walletSvc := wallet.NewService(wallet.ServiceParams{DB: db, Node: node})

	cfg := &config.Config{}
	cfg.Commission.Policy = "daily_aggregate"
	engine := referral.NewEngine(referral.EngineParams{DB: db, Node: node, Wallet: walletSvc, Config: cfg})

	return NewService(ServiceParams{DB: db, Wallet: walletSvc, Engine: engine}), db
}

func seedUser(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	require.NoError(t, db.Create(&user.User{
		ID:           id,
		Email:        id + "@example.com",
		ReferralCode: "RC" + id,
	}).Error)
}

func TestWatchVideoRewardRange(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1")

	result, err := svc.WatchVideo(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, wallet.TypeWatch, result.Type)
	require.GreaterOrEqual(t, result.Amount, 0.10)
	require.LessOrEqual(t, result.Amount, 0.20)
}

func TestScratchCardRewardRange(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1")

	result, err := svc.ScratchCard(context.Background(), "u1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.Amount, 0.05)
	require.LessOrEqual(t, result.Amount, 0.50)
}

func TestOpenTreasureDailyLimit(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1")

	_, err := svc.OpenTreasure(context.Background(), "u1")
	require.NoError(t, err)

	_, err = svc.OpenTreasure(context.Background(), "u1")
	require.Error(t, err)
}

func TestWatchVideoDailyLimit(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1")

	for i := 0; i < 20; i++ {
		_, err := svc.WatchVideo(context.Background(), "u1")
		require.NoError(t, err, "watch %d", i+1)
	}

	_, err := svc.WatchVideo(context.Background(), "u1")
	require.Error(t, err)

	_, count, err := svc.wallet.EarningsToday(context.Background(), "u1", wallet.TypeWatch, dateutil.Today())
	require.NoError(t, err)
	require.Equal(t, int64(20), count)
}

func TestCompleteTask(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1")

	result, err := svc.CompleteTask(context.Background(), "u1", "install-app", 0.75)
	require.NoError(t, err)
	require.Equal(t, wallet.TypeTask, result.Type)
	require.InDelta(t, 0.75, result.Amount, 1e-9)

	_, err = svc.CompleteTask(context.Background(), "u1", "install-app", 0)
	require.Error(t, err)
}

func TestRecordUnsupportedType(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1")

	_, err := svc.Record(context.Background(), "u1", wallet.TypeCommission, "", 0)
	require.Error(t, err)
}

func TestCheckInFirstTime(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1")

	result, err := svc.CheckIn(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 1, result.Streak)
	require.InDelta(t, 0.10, result.Reward, 1e-9)

	var u user.User
	require.NoError(t, db.Where("id = ?", "u1").First(&u).Error)
	require.True(t, u.IsActive)
	require.Equal(t, dateutil.Today(), u.LastActivityDate)
	require.Equal(t, dateutil.Today(), u.LastCheckin)
	require.InDelta(t, 0.10, u.TotalBalance, 1e-9)
}

func TestCheckInTwiceSameDay(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1")

	_, err := svc.CheckIn(context.Background(), "u1")
	require.NoError(t, err)

	_, err = svc.CheckIn(context.Background(), "u1")
	require.Error(t, err)

	var u user.User
	require.NoError(t, db.Where("id = ?", "u1").First(&u).Error)
	require.InDelta(t, 0.10, u.TotalBalance, 1e-9)
}

func TestCheckInRewardSequence(t *testing.T) {
	// Rewards climb 0.15 per consecutive day and cap at 1.00 from streak 7.
	expected := []float64{0.10, 0.25, 0.40, 0.55, 0.70, 0.85, 1.00, 1.00, 1.00}

	yesterday := dateutil.Yesterday(dateutil.Today())
	for prior, want := range expected {
		t.Run(fmt.Sprintf("streak_%d", prior+1), func(t *testing.T) {
			svc, db := newTestService(t)
			seedUser(t, db, "u1")

			if prior > 0 {
				require.NoError(t, db.Model(&user.User{}).Where("id = ?", "u1").
					Updates(map[string]any{"daily_streak": prior, "last_checkin": yesterday}).Error)
			}

			result, err := svc.CheckIn(context.Background(), "u1")
			require.NoError(t, err)
			require.Equal(t, prior+1, result.Streak)
			require.InDelta(t, want, result.Reward, 1e-9)
		})
	}
}

func TestCheckInStreakReset(t *testing.T) {
	svc, db := newTestService(t)
	seedUser(t, db, "u1")

	// Last check-in two days ago breaks the streak.
	stale := time.Now().UTC().AddDate(0, 0, -2).Format(dateutil.Layout)
	require.NoError(t, db.Model(&user.User{}).Where("id = ?", "u1").
		Updates(map[string]any{"daily_streak": 5, "last_checkin": stale}).Error)

	result, err := svc.CheckIn(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 1, result.Streak)
	require.InDelta(t, 0.10, result.Reward, 1e-9)
}

func TestCheckInUserNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CheckIn(context.Background(), "missing")
	require.Error(t, err)
}
