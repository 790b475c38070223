// Package api exposes the tracker over JSON request/response endpoints and a
// websocket watch of the live encounter.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cory-johannsen/initiative/internal/game/combat"
	"github.com/cory-johannsen/initiative/internal/observability"
	"github.com/cory-johannsen/initiative/internal/tracker"
	"github.com/cory-johannsen/initiative/internal/watch"
)

// Error kinds carried in ErrorBody.Kind.
const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindConflict   = "conflict"
	KindInternal   = "internal"
)

// Options tunes the router.
type Options struct {
	// PollInterval is the cadence of each watch socket's server-side poller.
	PollInterval time.Duration
	// FailureThreshold is passed to each watch socket's poller.
	FailureThreshold int
	// OriginPatterns lists extra hosts allowed to open watch sockets.
	OriginPatterns []string
	// Health, when set, is consulted by GET /health.
	Health func(ctx context.Context) error
}

type handler struct {
	svc    *tracker.Service
	logger *zap.Logger
	opts   Options
}

// NewRouter builds the HTTP handler for svc.
//
// Precondition: svc and logger must be non-nil.
func NewRouter(svc *tracker.Service, logger *zap.Logger, opts Options) *gin.Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = watch.DefaultInterval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = watch.DefaultFailureThreshold
	}
	h := &handler{svc: svc, logger: logger, opts: opts}

	r := gin.New()
	r.Use(observability.GinRecovery(logger), observability.GinLogger(logger))
	r.GET("/health", h.health)

	v1 := r.Group("/api/v1")
	{
		enc := v1.Group("/encounters")
		enc.GET("", h.listEncounters)
		enc.POST("", h.createEncounter)
		enc.GET("/live", h.liveEncounter)
		enc.GET("/live/watch", h.watchLive)
		enc.GET("/:id", h.getEncounter)
		enc.PATCH("/:id", h.updateEncounter)
		enc.DELETE("/:id", h.deleteEncounter)
		enc.POST("/:id/start", h.startEncounter)
		enc.POST("/:id/advance", h.advanceTurn)
		enc.POST("/:id/end", h.endEncounter)
		enc.GET("/:id/combatants", h.listCombatants)
		enc.POST("/:id/combatants", h.addCombatant)

		cmb := v1.Group("/combatants")
		cmb.PATCH("/:id", h.updateCombatant)
		cmb.DELETE("/:id", h.removeCombatant)
		cmb.POST("/:id/damage", h.damage)
		cmb.POST("/:id/heal", h.heal)
		cmb.POST("/:id/delta", h.delta)
	}
	return r
}

func (h *handler) health(c *gin.Context) {
	if h.opts.Health != nil {
		if err := h.opts.Health(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) listEncounters(c *gin.Context) {
	encs, err := h.svc.ListEncounters(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]EncounterView, len(encs))
	for i, enc := range encs {
		out[i] = NewEncounterView(enc)
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) createEncounter(c *gin.Context) {
	var req createEncounterRequest
	if !h.bind(c, &req) {
		return
	}
	enc, err := h.svc.CreateEncounter(c.Request.Context(), req.Name)
	h.respondEncounter(c, http.StatusCreated, enc, err)
}

func (h *handler) liveEncounter(c *gin.Context) {
	enc, err := h.svc.CurrentEncounter(c.Request.Context())
	h.respondEncounter(c, http.StatusOK, enc, err)
}

func (h *handler) getEncounter(c *gin.Context) {
	enc, err := h.svc.GetEncounter(c.Request.Context(), c.Param("id"))
	h.respondEncounter(c, http.StatusOK, enc, err)
}

func (h *handler) updateEncounter(c *gin.Context) {
	var patch combat.EncounterPatch
	if !h.bind(c, &patch) {
		return
	}
	enc, err := h.svc.UpdateEncounter(c.Request.Context(), c.Param("id"), patch)
	h.respondEncounter(c, http.StatusOK, enc, err)
}

func (h *handler) deleteEncounter(c *gin.Context) {
	if err := h.svc.DeleteEncounter(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) startEncounter(c *gin.Context) {
	enc, err := h.svc.StartEncounter(c.Request.Context(), c.Param("id"))
	h.respondEncounter(c, http.StatusOK, enc, err)
}

func (h *handler) advanceTurn(c *gin.Context) {
	enc, err := h.svc.AdvanceTurn(c.Request.Context(), c.Param("id"))
	h.respondEncounter(c, http.StatusOK, enc, err)
}

func (h *handler) endEncounter(c *gin.Context) {
	var req endEncounterRequest
	if !h.bindOptional(c, &req) {
		return
	}
	enc, err := h.svc.EndEncounter(c.Request.Context(), c.Param("id"), req.Outcome)
	h.respondEncounter(c, http.StatusOK, enc, err)
}

func (h *handler) listCombatants(c *gin.Context) {
	cs, err := h.svc.ListCombatants(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]CombatantView, len(cs))
	for i, cb := range cs {
		out[i] = NewCombatantView(cb)
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) addCombatant(c *gin.Context) {
	var in combat.NewCombatant
	if !h.bind(c, &in) {
		return
	}
	cb, err := h.svc.AddCombatant(c.Request.Context(), c.Param("id"), in)
	h.respondCombatant(c, http.StatusCreated, cb, err)
}

func (h *handler) updateCombatant(c *gin.Context) {
	var patch combat.CombatantPatch
	if !h.bind(c, &patch) {
		return
	}
	cb, err := h.svc.UpdateCombatant(c.Request.Context(), c.Param("id"), patch)
	h.respondCombatant(c, http.StatusOK, cb, err)
}

func (h *handler) removeCombatant(c *gin.Context) {
	if err := h.svc.RemoveCombatant(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) damage(c *gin.Context) {
	var req amountRequest
	if !h.bind(c, &req) {
		return
	}
	cb, err := h.svc.Damage(c.Request.Context(), c.Param("id"), req.Amount)
	h.respondCombatant(c, http.StatusOK, cb, err)
}

func (h *handler) heal(c *gin.Context) {
	var req amountRequest
	if !h.bind(c, &req) {
		return
	}
	cb, err := h.svc.Heal(c.Request.Context(), c.Param("id"), req.Amount)
	h.respondCombatant(c, http.StatusOK, cb, err)
}

func (h *handler) delta(c *gin.Context) {
	var req deltaRequest
	if !h.bind(c, &req) {
		return
	}
	cb, err := h.svc.ApplyDelta(c.Request.Context(), c.Param("id"), req.Delta)
	h.respondCombatant(c, http.StatusOK, cb, err)
}

func (h *handler) respondEncounter(c *gin.Context, status int, enc *combat.Encounter, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, NewEncounterView(enc))
}

func (h *handler) respondCombatant(c *gin.Context, status int, cb *combat.Combatant, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, NewCombatantView(cb))
}

// bind decodes a required JSON body, answering 400 on failure.
func (h *handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, &combat.ValidationError{Reason: "malformed request body", Err: err})
		return false
	}
	return true
}

// bindOptional is bind for endpoints whose body may be omitted.
func (h *handler) bindOptional(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, &combat.ValidationError{Reason: "malformed request body", Err: err})
		return false
	}
	return true
}

// fail maps err onto the error taxonomy. Validation is checked first because a
// validation failure may wrap the NotFoundError that caused it.
func (h *handler) fail(c *gin.Context, err error) {
	status, kind := http.StatusInternalServerError, KindInternal
	switch {
	case errors.Is(err, combat.ErrValidation):
		status, kind = http.StatusBadRequest, KindValidation
	case errors.Is(err, combat.ErrNotFound):
		status, kind = http.StatusNotFound, KindNotFound
	case errors.Is(err, combat.ErrConflict):
		status, kind = http.StatusConflict, KindConflict
	}
	_ = c.Error(err)
	msg := err.Error()
	if kind == KindInternal {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorBody{Error: msg, Kind: kind})
}
