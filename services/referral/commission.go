package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/Sonarrati/Cryptra-App/pkg/config"
	"github.com/Sonarrati/Cryptra-App/pkg/db/option"
	"github.com/Sonarrati/Cryptra-App/pkg/repository"
	"github.com/Sonarrati/Cryptra-App/pkg/task"
	"github.com/Sonarrati/Cryptra-App/services/user"
	"github.com/Sonarrati/Cryptra-App/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Policy selects how downline earnings convert into upline payouts.
type Policy string

const (
	// PolicyPerEarning pays a flat bonus per qualifying earning event
	// (legacy behaviour).
	PolicyPerEarning Policy = "per_earning"
	// PolicyDailyAggregate pays once per day from the invitee's daily
	// total, gated on each ancestor's own daily activity (default).
	PolicyDailyAggregate Policy = "daily_aggregate"
)

// Rate tables indexed by level-1.
var (
	perEarningRates     = [MaxLevel]float64{0.045, 0.02, 0.01, 0.005, 0.001, 0.0001, 0.00002}
	dailyAggregateRates = [MaxLevel]float64{0.045, 0.025, 0.015, 0.008, 0.003, 0.001, 0.0005}
)

// Engine walks a user's upline and posts commissions through the wallet.
type Engine struct {
	db       *gorm.DB
	node     *snowflake.Node
	wallet   *wallet.Service
	enqueuer task.Enqueuer
	policy   Policy

	edges repository.Repository[ReferralEdge]
}

type EngineParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Wallet   *wallet.Service
	Config   *config.Config
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewEngine(p EngineParams) *Engine {
	policy := PolicyDailyAggregate
	if p.Config != nil && Policy(p.Config.Commission.Policy) == PolicyPerEarning {
		policy = PolicyPerEarning
	}

	return &Engine{
		db:       p.DB,
		node:     p.Node,
		wallet:   p.Wallet,
		enqueuer: p.Enqueuer,
		policy:   policy,
		edges:    repository.ProvideStore[ReferralEdge](p.DB),
	}
}

func (e *Engine) PolicyName() Policy {
	return e.policy
}

// OnEarning is called after every posted earning. Under the per-earning
// policy it schedules a flat-bonus distribution; under the daily policy it
// is a no-op since settlement handles payouts. Derived earning types never
// re-trigger distribution, which is what prevents commission cascades.
func (e *Engine) OnEarning(ctx context.Context, earningID, userID string, typ wallet.EarningType, amount float64, date string) error {
	if typ.Derived() {
		return nil
	}
	if e.policy != PolicyPerEarning {
		return nil
	}

	if e.enqueuer == nil {
		return e.DistributePerEarning(ctx, earningID, userID, amount, date)
	}

	payload, _ := json.Marshal(DistributePayload{
		EarningID: earningID,
		UserID:    userID,
		Amount:    amount,
		Date:      date,
	})
	if _, err := e.enqueuer.Enqueue(asynq.NewTask(TypeDistributeCommission, payload)); err != nil {
		// Distribution is best-effort relative to the earning itself.
		zap.L().Error("failed to enqueue commission distribution",
			zap.String("user_id", userID),
			zap.String("earning_id", earningID),
			zap.Error(err),
		)
	}
	return nil
}

// HandleDistributeTask is the asynq worker entrypoint for per-earning payouts.
func (e *Engine) HandleDistributeTask(ctx context.Context, t *asynq.Task) error {
	var payload DistributePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return e.DistributePerEarning(ctx, payload.EarningID, payload.UserID, payload.Amount, payload.Date)
}

// DistributePerEarning walks the pre-materialized upline and pays a flat
// bonus per level from the triggering amount. Inactive ancestors are skipped
// without breaking the walk, and a failed level never aborts the rest.
func (e *Engine) DistributePerEarning(ctx context.Context, earningID, inviteeID string, amount float64, date string) error {
	if amount <= 0 {
		return nil
	}

	edges, err := e.upline(ctx, inviteeID)
	if err != nil {
		return err
	}

	for _, edge := range edges {
		if edge.Level < 1 || edge.Level > MaxLevel {
			continue
		}

		commission := floorPaisa(amount * perEarningRates[edge.Level-1])
		if commission <= 0 {
			continue
		}

		active, err := e.isActiveOn(ctx, edge.InviterID, date)
		if err != nil {
			zap.L().Error("failed to check ancestor activity",
				zap.String("inviter_id", edge.InviterID),
				zap.Int("level", edge.Level),
				zap.Error(err),
			)
			continue
		}
		if !active {
			continue
		}

		if err := e.pay(ctx, payout{
			InviterID:   edge.InviterID,
			InviteeID:   inviteeID,
			Level:       edge.Level,
			Rate:        perEarningRates[edge.Level-1],
			Base:        amount,
			Amount:      commission,
			Date:        date,
			ReferenceID: earningID,
		}); err != nil {
			zap.L().Error("commission payout failed",
				zap.String("inviter_id", edge.InviterID),
				zap.Int("level", edge.Level),
				zap.Error(err),
			)
		}
	}

	return nil
}

// DistributeDaily pays percentage-of-daily-earnings commissions up the chain.
// The walk hops level-1 edges: an inactive ancestor receives nothing but is
// still a valid hop toward the next level.
func (e *Engine) DistributeDaily(ctx context.Context, inviteeID string, dailyEarnings float64, date string) error {
	if dailyEarnings <= 0 {
		return nil
	}

	frontier := inviteeID
	for level := 1; level <= MaxLevel; level++ {
		edge, err := e.edges.FindOne(ctx, &ReferralEdge{InviteeID: frontier, Level: 1})
		if err != nil {
			return err
		}
		if edge == nil {
			break
		}

		inviterID := edge.InviterID

		active, err := e.isActiveOn(ctx, inviterID, date)
		if err != nil {
			zap.L().Error("failed to check ancestor activity",
				zap.String("inviter_id", inviterID),
				zap.Int("level", level),
				zap.Error(err),
			)
			frontier = inviterID
			continue
		}
		if !active {
			frontier = inviterID
			continue
		}

		rate := dailyAggregateRates[level-1]
		commission := dailyEarnings * rate
		if commission > 0 {
			if err := e.pay(ctx, payout{
				InviterID: inviterID,
				InviteeID: inviteeID,
				Level:     level,
				Rate:      rate,
				Base:      dailyEarnings,
				Amount:    commission,
				Date:      date,
			}); err != nil {
				zap.L().Error("commission payout failed",
					zap.String("inviter_id", inviterID),
					zap.Int("level", level),
					zap.Error(err),
				)
			}
		}

		frontier = inviterID
	}

	return nil
}

type payout struct {
	InviterID   string
	InviteeID   string
	Level       int
	Rate        float64
	Base        float64
	Amount      float64
	Date        string
	ReferenceID string
}

// pay posts one commission: audit record, wallet credit and the running
// referral-earnings total move in a single transaction. The record insert is
// the idempotency gate; a conflicting row means this payout already happened.
func (e *Engine) pay(ctx context.Context, p payout) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := &CommissionRecord{
			ID:                   e.node.Generate().String(),
			InviterID:            p.InviterID,
			InviteeID:            p.InviteeID,
			Level:                p.Level,
			Date:                 p.Date,
			ReferenceID:          p.ReferenceID,
			CommissionRate:       p.Rate,
			InviteeDailyEarnings: p.Base,
			CommissionAmount:     p.Amount,
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			zap.L().Debug("commission already paid",
				zap.String("inviter_id", p.InviterID),
				zap.Int("level", p.Level),
				zap.String("date", p.Date),
			)
			return nil
		}

		if p.ReferenceID != "" {
			// First flat bonus on this edge marks it as rewarded.
			if err := tx.Model(&ReferralEdge{}).
				Where("inviter_id = ? AND invitee_id = ? AND level = ? AND bonus_given = ?", p.InviterID, p.InviteeID, p.Level, false).
				Update("bonus_given", true).Error; err != nil {
				return err
			}
		}

		if _, err := e.wallet.CreditInTx(ctx, tx, wallet.CreditParams{
			UserID:      p.InviterID,
			Amount:      p.Amount,
			Type:        wallet.TypeCommission,
			Level:       p.Level,
			Description: fmt.Sprintf("Level %d commission (%.2f%% of %.2f)", p.Level, p.Rate*100, p.Base),
		}); err != nil {
			return err
		}

		return tx.Model(&user.User{}).
			Where("id = ?", p.InviterID).
			Updates(map[string]any{
				"total_referral_earnings": gorm.Expr("total_referral_earnings + ?", p.Amount),
				"updated_at":              time.Now(),
			}).Error
	})
}

func (e *Engine) upline(ctx context.Context, inviteeID string) ([]*ReferralEdge, error) {
	return e.edges.Find(ctx, &ReferralEdge{InviteeID: inviteeID},
		option.WithSortBy(option.QuerySortBy{SortBy: "level", OrderBy: "asc"}),
		option.WithLimit(MaxLevel),
	)
}

func (e *Engine) isActiveOn(ctx context.Context, userID, date string) (bool, error) {
	var u user.User
	if err := e.db.WithContext(ctx).Select("is_active", "last_activity_date").
		Where("id = ?", userID).First(&u).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}
	return u.IsActive && u.LastActivityDate == date, nil
}

func floorPaisa(amount float64) float64 {
	// The epsilon absorbs float representation error: 10 * 0.045 is
	// 0.44999999999999995 and must still floor to 0.45, not 0.44.
	return math.Floor(amount*100+1e-9) / 100
}
