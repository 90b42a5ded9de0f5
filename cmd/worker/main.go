package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Sonarrati/Cryptra-App/pkg/config"
	"github.com/Sonarrati/Cryptra-App/pkg/db"
	"github.com/Sonarrati/Cryptra-App/pkg/logger"
	"github.com/Sonarrati/Cryptra-App/pkg/redis"
	"github.com/Sonarrati/Cryptra-App/pkg/task"
	"github.com/Sonarrati/Cryptra-App/services/referral"
	"github.com/Sonarrati/Cryptra-App/services/settlement"
	"github.com/Sonarrati/Cryptra-App/services/user"
	"github.com/Sonarrati/Cryptra-App/services/wallet"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		fx.Provide(
			provideSnowflakeNode,
		),
		user.Module,
		wallet.Module,
		referral.Module,
		settlement.Module,
		fx.Invoke(
			registerHandlers,
			settlement.StartScheduler,
		),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func registerHandlers(mux *asynq.ServeMux, engine *referral.Engine, svc *settlement.Service) {
	mux.HandleFunc(referral.TypeDistributeCommission, engine.HandleDistributeTask)
	mux.HandleFunc(settlement.TypeDailySettlement, svc.HandleDailySettlementTask)
}
