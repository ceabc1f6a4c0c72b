package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/convergence-games/allocator/internal/allocator"
	"github.com/convergence-games/allocator/internal/cache"
	"github.com/convergence-games/allocator/internal/ws"
	"github.com/convergence-games/allocator/pkg/config"
)

// AllocationHandler runs the allocator over a posted time slot and
// serves its cached results.
type AllocationHandler struct {
	cache  *cache.RunCacheService
	wsHub  *ws.Hub
	config *config.Config
	logger *logrus.Logger
}

// NewAllocationHandler creates a new allocation handler.
func NewAllocationHandler(cache *cache.RunCacheService, wsHub *ws.Hub, cfg *config.Config, logger *logrus.Logger) *AllocationHandler {
	return &AllocationHandler{cache: cache, wsHub: wsHub, config: cfg, logger: logger}
}

// Allocate handles POST /time-slots/:time_slot_id/allocate.
func (h *AllocationHandler) Allocate(c *gin.Context) {
	timeSlotID := c.Param("time_slot_id")

	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: "invalid request body",
			Code:  "INVALID_INPUT",
			Details: map[string]string{
				"validation_error": err.Error(),
			},
		})
		return
	}
	if req.NTrials <= 0 {
		req.NTrials = h.config.DefaultNTrials
	}

	cacheKey := cache.Key(timeSlotID, req.RunSeed, req.NTrials, req.Preferences)
	var cached allocateResponse
	if hit, err := h.cache.GetResult(c.Request.Context(), cacheKey, &cached); err != nil {
		h.logger.WithError(err).Warn("allocation cache lookup failed")
	} else if hit {
		h.logger.WithField("cache_key", cacheKey).Info("returning cached allocation result")
		c.JSON(http.StatusOK, cached)
		return
	}

	input := toAllocatorInput(req)

	runID := uuid.New().String()
	log := h.logger.WithFields(logrus.Fields{"run_id": runID, "time_slot_id": timeSlotID})

	input.OnTrial = func(trial int, bestLoss int) {
		h.wsHub.BroadcastProgress(ws.TrialProgress{
			TimeSlotID: timeSlotID,
			Trial:      trial,
			NTrials:    req.NTrials,
			BestLoss:   bestLoss,
		})
	}

	start := time.Now()
	result, err := h.runWithTimeout(input)
	if err != nil {
		if errors.Is(err, errAllocationTimedOut) {
			log.WithField("timeout", h.config.AllocationTimeout).Warn("allocation run timed out")
			c.JSON(http.StatusGatewayTimeout, errorResponse{Error: err.Error(), Code: "TIMEOUT"})
			return
		}
		var invalid *allocator.InvalidInputError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "INVALID_INPUT"})
			return
		}
		log.WithError(err).Warn("allocation run found no feasible allocation")
		c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(),
			Code:  "NO_FEASIBLE_ALLOCATION",
		})
		return
	}

	h.wsHub.BroadcastProgress(ws.TrialProgress{TimeSlotID: timeSlotID, Trial: req.NTrials, NTrials: req.NTrials, BestLoss: result.TotalLoss, Done: true})

	response := toAllocateResponse(runID, result)
	if err := h.cache.SetResult(c.Request.Context(), cacheKey, response, h.config.ResultCacheExpiration); err != nil {
		log.WithError(err).Warn("failed to cache allocation result")
	}

	log.WithFields(logrus.Fields{
		"total_loss":     result.TotalLoss,
		"execution_time": time.Since(start),
	}).Info("allocation run completed")

	c.JSON(http.StatusOK, response)
}

var errAllocationTimedOut = errors.New("allocation run exceeded its time budget")

// runWithTimeout runs the allocator on its own goroutine and bounds how
// long the caller waits for it, since Allocate takes no context (its
// trials are pure CPU-bound computation with no I/O to cancel).
func (h *AllocationHandler) runWithTimeout(input allocator.Input) (*allocator.Result, error) {
	type outcome struct {
		result *allocator.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := allocator.Allocate(input)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-time.After(h.config.AllocationTimeout):
		return nil, errAllocationTimedOut
	}
}

func toAllocatorInput(req allocateRequest) allocator.Input {
	sessions := make([]allocator.Session, len(req.Sessions))
	for i, s := range req.Sessions {
		sessions[i] = allocator.Session{
			ID:        allocator.SessionID(s.ID),
			Min:       s.Min,
			Optimal:   s.Optimal,
			Max:       s.Max,
			GameTitle: s.GameTitle,
		}
	}

	groups := make([]allocator.Group, len(req.Groups))
	for i, g := range req.Groups {
		playerIDs := make([]allocator.PlayerID, len(g.PlayerIDs))
		for j, p := range g.PlayerIDs {
			playerIDs[j] = allocator.PlayerID(p)
		}
		groups[i] = allocator.Group{
			ID:        allocator.GroupID(g.ID),
			PlayerIDs: playerIDs,
			AvgComp:   g.AvgCompensation,
		}
	}

	prefs := make([]allocator.PreferenceEntry, len(req.Preferences))
	for i, p := range req.Preferences {
		prefs[i] = allocator.PreferenceEntry{
			GroupID:   allocator.GroupID(p.GroupID),
			SessionID: allocator.SessionID(p.SessionID),
			Score:     allocator.Score(p.Score),
		}
	}

	var priority allocator.PriorityPolicy
	if req.GoldenD20 {
		priority = allocator.NewGoldenD20First(prefs)
	}

	return allocator.Input{
		Sessions:    sessions,
		Groups:      groups,
		Preferences: prefs,
		RunSeed:     req.RunSeed,
		NTrials:     req.NTrials,
		Priority:    priority,
	}
}

func toAllocateResponse(runID string, result *allocator.Result) allocateResponse {
	assignments := make([]assignmentDTO, len(result.Assignments))
	for i, a := range result.Assignments {
		assignments[i] = assignmentDTO{GroupID: string(a.GroupID), SessionID: string(a.SessionID)}
	}

	return allocateResponse{
		RunID:          runID,
		Assignments:    assignments,
		TotalLoss:      result.TotalLoss,
		LossHistogram:  result.LossHistogram,
		DeltaHistogram: result.DeltaHistogram,
	}
}
