package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

type Check func(ctx context.Context) error

type HealthHandler struct {
	required map[string]Check
	// informational checks are reported but never fail readiness
	informational map[string]Check
}

func NewHealthHandler(required, informational map[string]Check) *HealthHandler {
	return &HealthHandler{required: required, informational: informational}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	checks := gin.H{}
	ready := true

	run := func(set map[string]Check, gate bool) {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			cctx, cancel := context.WithTimeout(ctx.Request.Context(), time.Second)
			err := set[name](cctx)
			cancel()

			if err != nil {
				checks[name] = err.Error()
				if gate {
					ready = false
				}
				continue
			}
			checks[name] = "ok"
		}
	}

	run(h.required, true)
	run(h.informational, false)

	if !ready {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": checks})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}
