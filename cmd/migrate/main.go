package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Sonarrati/Cryptra-App/pkg/config"
	"github.com/Sonarrati/Cryptra-App/pkg/db"
	"github.com/Sonarrati/Cryptra-App/pkg/logger"
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
		fx.Invoke(migrate),
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

func migrate(gdb *gorm.DB, shutdowner fx.Shutdowner) error {
	err := gdb.AutoMigrate(
		&user.User{},
		&wallet.Earning{},
		&wallet.Withdrawal{},
		&referral.ReferralEdge{},
		&referral.DailyEarningsSnapshot{},
		&referral.CommissionRecord{},
		&settlement.Job{},
	)
	if err != nil {
		zap.L().Error("migration failed", zap.Error(err))
		return err
	}

	zap.L().Info("migration completed")
	return shutdowner.Shutdown()
}
