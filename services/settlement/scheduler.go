package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Sonarrati/Cryptra-App/pkg/config"
	"github.com/Sonarrati/Cryptra-App/pkg/dateutil"
	"github.com/Sonarrati/Cryptra-App/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler wakes up once a day and kicks off settlement for the previous
// UTC date, so a run at 00:30 settles the day that just closed.
type Scheduler struct {
	service  *Service
	enqueuer task.Enqueuer
	hour     int
	minute   int
}

type SchedulerParams struct {
	fx.In
	Service  *Service
	Config   *config.Config
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		service:  p.Service,
		enqueuer: p.Enqueuer,
		hour:     p.Config.Settlement.Hour,
		minute:   p.Config.Settlement.Minute,
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.run(context.Background())
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started daily settlement scheduler",
		zap.Int("hour", s.hour),
		zap.Int("minute", s.minute),
	)

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, s.minute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	date := dateutil.Yesterday(dateutil.Today())

	if s.enqueuer == nil {
		if _, err := s.service.Run(ctx, date); err != nil {
			zap.L().Error("[Scheduler] settlement run failed", zap.String("date", date), zap.Error(err))
		}
		return
	}

	payload, _ := json.Marshal(DailySettlementPayload{Date: date})
	if _, err := s.enqueuer.Enqueue(asynq.NewTask(TypeDailySettlement, payload), asynq.Queue("critical")); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue settlement", zap.String("date", date), zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] enqueued daily settlement", zap.String("date", date))
}

// nextRunTime computes the next wall-clock occurrence of hour:minute.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
