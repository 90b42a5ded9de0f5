package settlement

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sonarrati/Cryptra-App/pkg/dateutil"
	"github.com/Sonarrati/Cryptra-App/pkg/errutil"
	"github.com/Sonarrati/Cryptra-App/services/referral"
	"github.com/Sonarrati/Cryptra-App/services/user"
	"github.com/Sonarrati/Cryptra-App/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// settlementWorkers bounds the per-user settlement fan-out. Settlements for
// different users only share the ancestor rows they credit, and those are
// atomic increments.
const settlementWorkers = 8

// Service runs the daily commission settlement over every active user.
type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	wallet *wallet.Service
	engine *referral.Engine
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Wallet *wallet.Service
	Engine *referral.Engine
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		wallet: p.Wallet,
		engine: p.Engine,
	}
}

// Run settles one date: select the users who were active that day, settle
// each one, then clear the settled users' active flags so activity must be
// re-earned the next day. Safe to re-run for the same date.
func (s *Service) Run(ctx context.Context, date string) (*Job, error) {
	if date == "" {
		date = dateutil.Today()
	}
	if _, _, err := dateutil.DayRange(date); err != nil {
		return nil, errutil.BadRequest("invalid date", errutil.WithErr(err))
	}

	now := time.Now()
	job := &Job{
		ID:        s.node.Generate().String(),
		Date:      date,
		Status:    JobRunning,
		StartedAt: &now,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}

	zap.L().Info("settlement started", zap.String("date", date), zap.String("job_id", job.ID))

	var userIDs []string
	if err := s.db.WithContext(ctx).Model(&user.User{}).
		Where("is_active = ? AND last_activity_date = ?", true, date).
		Pluck("id", &userIDs).Error; err != nil {
		s.finishJob(ctx, job, JobFailed, 0, 0, nil)
		return nil, err
	}

	var settled atomic.Int64
	var mu sync.Mutex
	var failedIDs []string

	g := errgroup.Group{}
	g.SetLimit(settlementWorkers)
	for _, userID := range userIDs {
		g.Go(func() error {
			if err := s.settleUser(ctx, userID, date); err != nil {
				mu.Lock()
				failedIDs = append(failedIDs, userID)
				mu.Unlock()
				zap.L().Error("user settlement failed",
					zap.String("user_id", userID),
					zap.String("date", date),
					zap.Error(err),
				)
				return nil
			}
			settled.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	reset := s.db.WithContext(ctx).Model(&user.User{}).Where("is_active = ?", true)
	if len(failedIDs) > 0 {
		// Failed users keep their activity flag so the next run for this
		// date selects and retries them.
		reset = reset.Where("id NOT IN ?", failedIDs)
	}
	if err := reset.
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": time.Now(),
		}).Error; err != nil {
		s.finishJob(ctx, job, JobFailed, len(userIDs), int(settled.Load()), failedIDs)
		return nil, err
	}

	status := JobSuccess
	if len(failedIDs) > 0 {
		status = JobFailed
	}
	s.finishJob(ctx, job, status, len(userIDs), int(settled.Load()), failedIDs)

	zap.L().Info("settlement finished",
		zap.String("date", date),
		zap.Int("active_users", len(userIDs)),
		zap.Int64("settled", settled.Load()),
		zap.Int("failed", len(failedIDs)),
		zap.Duration("duration", time.Since(now)),
	)

	return job, nil
}

// settleUser snapshots one user's non-derived daily total and distributes
// daily commissions from it.
func (s *Service) settleUser(ctx context.Context, userID, date string) error {
	total, err := s.wallet.DailyEarningsExcluding(ctx, userID, date, wallet.TypeReferral, wallet.TypeCommission)
	if err != nil {
		return err
	}

	snapshot := referral.DailyEarningsSnapshot{
		ID:          s.node.Generate().String(),
		UserID:      userID,
		Date:        date,
		TotalEarned: total,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_earned", "updated_at"}),
	}).Create(&snapshot).Error; err != nil {
		return err
	}

	if total <= 0 {
		return nil
	}

	// Under the per-earning policy commissions were already paid at earning
	// time; settlement then only keeps the snapshot books. Distributing here
	// too would pay the upline twice for the same earnings.
	if s.engine.PolicyName() != referral.PolicyDailyAggregate {
		return nil
	}

	return s.engine.DistributeDaily(ctx, userID, total, date)
}

func (s *Service) finishJob(ctx context.Context, job *Job, status JobStatus, active, settled int, failedIDs []string) {
	updates := map[string]any{
		"status":       status,
		"active_users": active,
		"settled":      settled,
		"failed":       len(failedIDs),
		"completed_at": time.Now(),
	}
	if len(failedIDs) > 0 {
		if raw, err := json.Marshal(failedIDs); err == nil {
			updates["failed_users"] = datatypes.JSON(raw)
			job.FailedUsers = datatypes.JSON(raw)
		}
	}

	if err := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
		zap.L().Error("failed to update settlement job", zap.String("job_id", job.ID), zap.Error(err))
	}
	job.Status = status
	job.ActiveUsers = active
	job.Settled = settled
	job.Failed = len(failedIDs)
}

// HandleDailySettlementTask is the asynq worker entrypoint.
func (s *Service) HandleDailySettlementTask(ctx context.Context, t *asynq.Task) error {
	var payload DailySettlementPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid settlement payload", zap.Error(err))
		return err
	}

	_, err := s.Run(ctx, payload.Date)
	return err
}
