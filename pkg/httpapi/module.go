package httpapi

import (
	"github.com/Sonarrati/Cryptra-App/pkg/config"
	"github.com/Sonarrati/Cryptra-App/pkg/health"
	"github.com/Sonarrati/Cryptra-App/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(RegisterRouter),
	fx.Invoke(registerHealthEndpoints),
)

func RegisterRouter(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(),
		middleware.Error(),
	)

	return r
}

func registerHealthEndpoints(r *gin.Engine, svc health.HealthService) {
	r.GET("/healthz", svc.Liveness)
	r.GET("/readyz", svc.Readiness)
}
