// Package handlers provides the http trigger endpoints: a single-update
// endpoint that runs the same state machine as the queue consumer, plus
// liveness and readiness probes.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/dirops/authseed/internal/consumer"
	"github.com/dirops/authseed/internal/directory"
	"github.com/dirops/authseed/internal/errs"
	"github.com/dirops/authseed/internal/sqldb"
	"github.com/dirops/authseed/pkg/logger"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/trace"
)

type handler struct {
	consumer *consumer.Consumer
	db       *sqlx.DB
	log      *logger.Logger
	tracer   trace.Tracer
	build    string
}

func (h *handler) authUpdate(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handlers.authUpdate")
	defer span.End()

	var req appUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err)
		return
	}

	if err := h.consumer.HandleUpdate(ctx, toUpdateMessage(req)); err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			c.Error(errs.New(http.StatusNotFound, "handleUpdate: %s", err))
			return
		}

		c.Error(errs.New(http.StatusInternalServerError, "handleUpdate: %s", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func (h *handler) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second*10)
	defer cancel()

	if err := sqldb.ConnCheck(ctx, h.db); err != nil {
		h.log.Error(ctx, "readiness failed", "err", err.Error())
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"msg": "ok"})
}

func (h *handler) liveness(c *gin.Context) {
	//host name from kernel
	host, err := os.Hostname()
	if err != nil {
		host = "unavailable"
	}

	info := Info{
		Status:     "running",
		Build:      h.build,
		Host:       host,
		Name:       os.Getenv("KUBERNETES_NAME"),
		PodIP:      os.Getenv("KUBERNETES_POD_IP"),
		Node:       os.Getenv("KUBERNETES_NODE_NAME"),
		Namespace:  os.Getenv("KUBERNETES_NAMESPACE"),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
	}

	c.JSON(http.StatusOK, info)
}
