package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Sonarrati/Cryptra-App/internal/httpapi"
	"github.com/Sonarrati/Cryptra-App/pkg/config"
	"github.com/Sonarrati/Cryptra-App/pkg/db"
	"github.com/Sonarrati/Cryptra-App/pkg/health"
	pkghttpapi "github.com/Sonarrati/Cryptra-App/pkg/httpapi"
	"github.com/Sonarrati/Cryptra-App/pkg/logger"
	"github.com/Sonarrati/Cryptra-App/pkg/redis"
	"github.com/Sonarrati/Cryptra-App/pkg/sequence"
	"github.com/Sonarrati/Cryptra-App/pkg/server"
	"github.com/Sonarrati/Cryptra-App/pkg/task"
	"github.com/Sonarrati/Cryptra-App/services/activity"
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
		sequence.Module,
		health.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		pkghttpapi.Module,
		user.Module,
		wallet.Module,
		referral.Module,
		activity.Module,
		settlement.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
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
