package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/dirops/authseed/internal/consumer"
	"github.com/dirops/authseed/internal/mid"
	"github.com/dirops/authseed/pkg/logger"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/trace"
)

type Conf struct {
	Router   *gin.Engine
	Consumer *consumer.Consumer
	DB       *sqlx.DB
	Log      *logger.Logger
	Tracer   trace.Tracer
	APIKey   string
	Build    string
}

// RegisterRoutes registers the trigger and probe endpoints.
func RegisterRoutes(cfg Conf) {
	h := handler{
		consumer: cfg.Consumer,
		db:       cfg.DB,
		log:      cfg.Log,
		tracer:   cfg.Tracer,
		build:    cfg.Build,
	}

	cfg.Router.POST("/v1/authupdate", mid.APIKey(cfg.APIKey), h.authUpdate)
	cfg.Router.GET("/v1/readiness", h.readiness)
	cfg.Router.GET("/v1/liveness", h.liveness)
}
