package activity

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/Sonarrati/Cryptra-App/pkg/dateutil"
	"github.com/Sonarrati/Cryptra-App/pkg/errutil"
	"github.com/Sonarrati/Cryptra-App/services/referral"
	"github.com/Sonarrati/Cryptra-App/services/user"
	"github.com/Sonarrati/Cryptra-App/services/wallet"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service gates the daily reward activities and posts their earnings.
type Service struct {
	db     *gorm.DB
	wallet *wallet.Service
	engine *referral.Engine
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Wallet *wallet.Service
	Engine *referral.Engine
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		wallet: p.Wallet,
		engine: p.Engine,
	}
}

// DailyCount returns how many earnings of the given type the user already
// posted on the given UTC date.
func (s *Service) DailyCount(ctx context.Context, userID string, typ wallet.EarningType, date string) (int64, error) {
	_, count, err := s.wallet.EarningsToday(ctx, userID, typ, date)
	return count, err
}

func (s *Service) checkDailyLimit(ctx context.Context, userID string, typ wallet.EarningType, date string) error {
	limit, ok := DailyLimits[typ]
	if !ok {
		return errutil.BadRequest(fmt.Sprintf("unsupported activity type %q", typ))
	}

	count, err := s.DailyCount(ctx, userID, typ, date)
	if err != nil {
		return err
	}
	if count >= limit {
		return errutil.TooManyRequest(
			fmt.Sprintf("daily limit reached for %s", typ),
			errutil.WithDetails(errutil.Detail{
				Field:   "limit",
				Message: fmt.Sprintf("%d per day", limit),
			}),
		)
	}
	return nil
}

func (s *Service) WatchVideo(ctx context.Context, userID string) (*Result, error) {
	return s.rewardActivity(ctx, userID, wallet.TypeWatch, "Watched a video ad")
}

func (s *Service) ScratchCard(ctx context.Context, userID string) (*Result, error) {
	return s.rewardActivity(ctx, userID, wallet.TypeScratch, "Scratch card reward")
}

func (s *Service) OpenTreasure(ctx context.Context, userID string) (*Result, error) {
	return s.rewardActivity(ctx, userID, wallet.TypeTreasure, "Treasure box reward")
}

// CompleteTask credits a fixed-amount task reward named by the caller.
func (s *Service) CompleteTask(ctx context.Context, userID, taskName string, reward float64) (*Result, error) {
	if reward <= 0 {
		return nil, errutil.BadRequest("task reward must be > 0")
	}

	date := dateutil.Today()
	if err := s.checkDailyLimit(ctx, userID, wallet.TypeTask, date); err != nil {
		return nil, err
	}

	return s.credit(ctx, userID, wallet.TypeTask, roundPaisa(reward), fmt.Sprintf("Completed task: %s", taskName), date)
}

// Record dispatches on the activity type, so the HTTP layer stays a thin
// decode-and-forward shim.
func (s *Service) Record(ctx context.Context, userID string, typ wallet.EarningType, taskName string, reward float64) (*Result, error) {
	switch typ {
	case wallet.TypeWatch:
		return s.WatchVideo(ctx, userID)
	case wallet.TypeScratch:
		return s.ScratchCard(ctx, userID)
	case wallet.TypeTreasure:
		return s.OpenTreasure(ctx, userID)
	case wallet.TypeTask:
		return s.CompleteTask(ctx, userID, taskName, reward)
	default:
		return nil, errutil.BadRequest(fmt.Sprintf("unsupported activity type %q", typ))
	}
}

func (s *Service) rewardActivity(ctx context.Context, userID string, typ wallet.EarningType, description string) (*Result, error) {
	date := dateutil.Today()
	if err := s.checkDailyLimit(ctx, userID, typ, date); err != nil {
		return nil, err
	}

	r := rewardRanges[typ]
	amount := roundPaisa(r.Min + rand.Float64()*(r.Max-r.Min))

	return s.credit(ctx, userID, typ, amount, description, date)
}

func (s *Service) credit(ctx context.Context, userID string, typ wallet.EarningType, amount float64, description, date string) (*Result, error) {
	earning, err := s.wallet.Credit(ctx, wallet.CreditParams{
		UserID:      userID,
		Amount:      amount,
		Type:        typ,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	s.notifyEngine(ctx, earning, date)

	return &Result{Type: typ, Amount: amount}, nil
}

// notifyEngine hands the earning to the commission engine. Distribution is
// best-effort relative to the earning, so failures are logged and swallowed.
func (s *Service) notifyEngine(ctx context.Context, earning *wallet.Earning, date string) {
	if err := s.engine.OnEarning(ctx, earning.ID, earning.UserID, earning.Type, earning.Amount, date); err != nil {
		zap.L().Error("commission distribution failed",
			zap.String("user_id", earning.UserID),
			zap.String("earning_id", earning.ID),
			zap.Error(err),
		)
	}
}

// CheckIn advances or resets the daily streak, marks the user active for
// today and credits the streak reward. The streak update and the credit
// commit together.
func (s *Service) CheckIn(ctx context.Context, userID string) (*CheckInResult, error) {
	var u user.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("user not found")
		}
		return nil, err
	}

	today := dateutil.Today()
	if u.LastCheckin == today {
		return nil, errutil.Conflict("already checked in today")
	}

	streak := 1
	if u.LastCheckin == dateutil.Yesterday(today) {
		streak = u.DailyStreak + 1
	}

	reward := math.Min(CheckinBaseReward+float64(streak-1)*CheckinStepReward, CheckinMaxReward)
	reward = roundPaisa(reward)

	var earning *wallet.Earning
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The guard on last_checkin makes a concurrent double check-in
		// lose the race instead of double-crediting.
		res := tx.Model(&user.User{}).
			Where("id = ? AND (last_checkin IS NULL OR last_checkin <> ?)", userID, today).
			Updates(map[string]any{
				"daily_streak":       streak,
				"last_checkin":       today,
				"is_active":          true,
				"last_activity_date": today,
				"updated_at":         time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("already checked in today")
		}

		var err error
		earning, err = s.wallet.CreditInTx(ctx, tx, wallet.CreditParams{
			UserID:      userID,
			Amount:      reward,
			Type:        wallet.TypeCheckin,
			Description: fmt.Sprintf("Daily check-in (streak %d)", streak),
		})
		return err
	}); err != nil {
		return nil, err
	}

	s.notifyEngine(ctx, earning, today)

	zap.L().Info("user checked in",
		zap.String("user_id", userID),
		zap.Int("streak", streak),
		zap.Float64("reward", reward),
	)

	return &CheckInResult{Streak: streak, Reward: reward, Date: today}, nil
}

func roundPaisa(amount float64) float64 {
	return math.Round(amount*100) / 100
}
