// internal/services/pipeline_service.go
package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/retailradar/arbitrage-backend/internal/cache"
	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/metrics"
	"github.com/retailradar/arbitrage-backend/internal/models"
	"github.com/retailradar/arbitrage-backend/internal/utils"
)

// RecordSource is the scraping collaborator contract. FetchDue returns fresh
// listings for the requested entities; the pipeline treats the stream as
// untrusted and tolerates missing entities and missing fields. A nil source
// switches the pipeline to rescoring mode on stored data.
type RecordSource interface {
	FetchDue(ctx context.Context, entityIDs []string) ([]models.ProductRecord, error)
}

// candidateLimit bounds how many cross-retailer partners one entity is
// scored against per cycle.
const candidateLimit = 50

// CycleStatus is the record of one pipeline cycle, kept in memory for the
// status endpoint and logged at completion.
type CycleStatus struct {
	ID            string        `json:"id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Duration      time.Duration `json:"duration"`
	Due           int           `json:"due"`
	Ingested      int           `json:"ingested"`
	Skipped       int           `json:"skipped"`
	Failures      int           `json:"failures"`
	PairsScored   int64         `json:"pairs_scored"`
	Accepted      int64         `json:"accepted"`
	Opportunities int64         `json:"opportunities"`
	Expired       int           `json:"expired"`
	Deferred      int64         `json:"deferred"`
	Error         string        `json:"error,omitempty"`
}

// PipelineService runs the detection cycle: due set, ingest, score, detect,
// expire, warm up. Cycles are serialized; a tick that arrives while one is
// running is skipped, not queued.
type PipelineService struct {
	cfg           config.PipelineConfig
	source        RecordSource
	entities      *EntityService
	prices        *PriceService
	matching      *MatchingService
	opportunities *OpportunityService
	tiers         *TierService
	cache         *cache.MultiLevelCache

	running  atomic.Bool
	inFlight sync.WaitGroup

	mu        sync.RWMutex
	lastCycle *CycleStatus
}

func NewPipelineService(
	cfg config.PipelineConfig,
	source RecordSource,
	entities *EntityService,
	prices *PriceService,
	matching *MatchingService,
	opportunities *OpportunityService,
	tiers *TierService,
	mlc *cache.MultiLevelCache,
) *PipelineService {
	return &PipelineService{
		cfg:           cfg,
		source:        source,
		entities:      entities,
		prices:        prices,
		matching:      matching,
		opportunities: opportunities,
		tiers:         tiers,
		cache:         mlc,
	}
}

// RunCycle executes one full cycle within the configured wall-clock budget.
// Work not started by the deadline is deferred to the next cycle; already
// submitted pair writes always run to completion.
func (s *PipelineService) RunCycle(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		logrus.Warn("Pipeline cycle skipped, previous cycle still running")
		return nil
	}
	defer s.running.Store(false)

	s.inFlight.Add(1)
	defer s.inFlight.Done()

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CycleBudget)
	defer cancel()

	status := &CycleStatus{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
	}
	log := logrus.WithField("cycle", status.ID)
	log.Info("Pipeline cycle started")

	due, err := s.tiers.DueAssignments(status.StartedAt, s.cfg.BatchSize)
	if err != nil {
		s.finish(status, err)
		return err
	}
	status.Due = len(due)

	dueIDs := make([]string, len(due))
	for i := range due {
		dueIDs[i] = due[i].EntityID
	}

	entitySet, observations := s.ingest(cctx, dueIDs, status, log)

	var scored, accepted, found, deferred atomic.Int64
	pool := utils.NewWorkerPool(s.cfg.Workers, nil)
	seenPairs := utils.NewStringSet()

	for id := range entitySet {
		entity := entitySet[id]
		obs := observations[id]

		candidates, err := s.matching.FindCandidates(entity, candidateLimit)
		if err != nil {
			log.WithError(err).WithField("entity", id).Warn("Candidate lookup failed")
			continue
		}

		for i := range candidates {
			candidate := candidates[i]
			if !seenPairs.Add(models.PairKey(entity.ID, candidate.ID)) {
				continue
			}

			submitErr := pool.Submit(cctx, func() {
				s.scorePair(cctx, entity, &candidate, obs, &scored, &accepted, &found, &deferred, log)
			})
			if submitErr != nil {
				deferred.Add(1)
			}
		}

		metrics.EntitiesProcessed.Inc()
	}
	pool.Wait()

	expired, err := s.opportunities.ExpireStale(cctx)
	if err != nil {
		log.WithError(err).Warn("Expiry pass failed")
	}
	status.Expired = expired

	s.warmup(cctx, status.StartedAt, log)

	status.PairsScored = scored.Load()
	status.Accepted = accepted.Load()
	status.Opportunities = found.Load()
	status.Deferred = deferred.Load()
	s.finish(status, nil)

	log.WithFields(logrus.Fields{
		"due":           status.Due,
		"ingested":      status.Ingested,
		"skipped":       status.Skipped,
		"failures":      status.Failures,
		"pairs_scored":  status.PairsScored,
		"accepted":      status.Accepted,
		"opportunities": status.Opportunities,
		"expired":       status.Expired,
		"deferred":      status.Deferred,
		"duration":      status.Duration.String(),
	}).Info("Pipeline cycle finished")
	return nil
}

// ingest pulls fresh records for the due entities and applies them. Without
// a record source the due entities are reloaded from storage and rescored
// against their latest frozen-or-open observations.
func (s *PipelineService) ingest(ctx context.Context, dueIDs []string, status *CycleStatus, log *logrus.Entry) (map[string]*models.Entity, map[string]*models.PriceObservation) {
	entitySet := make(map[string]*models.Entity)
	observations := make(map[string]*models.PriceObservation)
	now := time.Now()

	if s.source == nil {
		stored, err := s.entities.GetByIDs(dueIDs)
		if err != nil {
			log.WithError(err).Warn("Failed to load due entities")
			return entitySet, observations
		}
		for id, entity := range stored {
			entitySet[id] = entity
			if obs, err := s.prices.LatestObservation(id); err == nil {
				observations[id] = obs
			}
			_ = s.tiers.MarkEvaluated(id, now)
		}
		status.Ingested = len(entitySet)
		return entitySet, observations
	}

	records, err := s.source.FetchDue(ctx, dueIDs)
	if err != nil {
		log.WithError(err).Warn("Record source fetch failed, deferring due set")
		for _, id := range dueIDs {
			_ = s.tiers.RecordFailure(id, "fetch failed", now)
		}
		status.Failures = len(dueIDs)
		return entitySet, observations
	}

	for i := range records {
		rec := &records[i]

		entity, err := s.entities.RegisterRecord(rec)
		if err != nil {
			if errors.Is(err, ErrInsufficientIdentityData) {
				log.WithField("retailer", rec.Retailer).Debug("Record skipped, no identity key material")
				status.Skipped++
				continue
			}
			log.WithError(err).Warn("Record registration failed")
			status.Failures++
			continue
		}

		obs, err := s.prices.RecordObservation(ctx, entity.ID, rec)
		if err != nil {
			if errors.Is(err, ErrPriceFrozen) || errors.Is(err, ErrPriceAnomaly) {
				status.Skipped++
				if obs, lerr := s.prices.LatestObservation(entity.ID); lerr == nil {
					observations[entity.ID] = obs
				}
			} else {
				log.WithError(err).WithField("entity", entity.ID).Warn("Price write failed")
				status.Failures++
				_ = s.tiers.RecordFailure(entity.ID, "price write failed", now)
				continue
			}
		} else {
			observations[entity.ID] = obs
			if _, verr := s.prices.ComputeVolatility(ctx, entity.ID); verr != nil {
				log.WithError(verr).WithField("entity", entity.ID).Debug("Volatility update failed")
			}
		}

		entitySet[entity.ID] = entity
		status.Ingested++
		_ = s.tiers.MarkEvaluated(entity.ID, now)
	}

	covered := make(map[string]bool, len(entitySet))
	for id := range entitySet {
		covered[id] = true
	}
	for _, id := range dueIDs {
		if !covered[id] {
			_ = s.tiers.RecordFailure(id, "no fresh record", now)
			status.Failures++
		}
	}
	return entitySet, observations
}

func (s *PipelineService) scorePair(ctx context.Context, entity, candidate *models.Entity, obs *models.PriceObservation, scored, accepted, found, deferred *atomic.Int64, log *logrus.Entry) {
	candidateObs, err := s.prices.LatestObservation(candidate.ID)
	if err != nil {
		deferred.Add(1)
		metrics.UnitsDeferred.Inc()
		return
	}

	var bestEntity, bestCandidate int64
	if obs != nil {
		bestEntity = obs.BestPrice()
	}
	if candidateObs != nil {
		bestCandidate = candidateObs.BestPrice()
	}

	match, err := s.matching.ScorePair(ctx, entity, candidate, bestEntity, bestCandidate)
	if err != nil {
		if !errors.Is(err, ErrSameRetailer) {
			deferred.Add(1)
			metrics.UnitsDeferred.Inc()
			log.WithError(err).Debug("Pair scoring failed")
		}
		return
	}
	scored.Add(1)
	if match == nil || match.Decision != models.MatchDecisionAccepted {
		return
	}
	accepted.Add(1)

	obsA, obsB := obs, candidateObs
	if match.EntityAID != entity.ID {
		obsA, obsB = candidateObs, obs
	}
	opp, err := s.opportunities.Detect(ctx, match, obsA, obsB)
	if err != nil {
		deferred.Add(1)
		metrics.UnitsDeferred.Inc()
		log.WithError(err).Debug("Opportunity detection failed")
		return
	}
	if opp != nil {
		found.Add(1)
	}
}

// warmup pushes stored verdicts for the next window's due entities into the
// predictive cache layer so early next-cycle scoring starts warm.
func (s *PipelineService) warmup(ctx context.Context, now time.Time, log *logrus.Entry) {
	if ctx.Err() != nil {
		return
	}

	horizon := now.Add(2 * s.cfg.CycleBudget)
	upcoming, err := s.tiers.DueAssignments(horizon, s.cfg.BatchSize)
	if err != nil {
		log.WithError(err).Debug("Warmup due-set lookup failed")
		return
	}

	for i := range upcoming {
		if ctx.Err() != nil {
			return
		}
		if err := s.matching.PrewarmStored(ctx, upcoming[i].EntityID); err != nil {
			log.WithError(err).Debug("Warmup failed for entity")
		}
	}
}

func (s *PipelineService) finish(status *CycleStatus, err error) {
	status.FinishedAt = time.Now()
	status.Duration = status.FinishedAt.Sub(status.StartedAt)

	result := "completed"
	if err != nil {
		status.Error = err.Error()
		result = "failed"
	} else if status.Deferred > 0 {
		result = "partial"
	}

	metrics.CycleDuration.Observe(status.Duration.Seconds())
	metrics.CyclesTotal.WithLabelValues(result).Inc()

	s.mu.Lock()
	s.lastCycle = status
	s.mu.Unlock()
}

// TriggerAsync starts a cycle in the background unless one is already
// running. Used by the admin endpoint.
func (s *PipelineService) TriggerAsync() bool {
	if s.running.Load() {
		return false
	}
	go func() {
		if err := s.RunCycle(context.Background()); err != nil {
			logrus.WithError(err).Error("Manual pipeline cycle failed")
		}
	}()
	return true
}

// LastCycle returns the most recent cycle record, false before the first
// cycle completes.
func (s *PipelineService) LastCycle() (CycleStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastCycle == nil {
		return CycleStatus{}, false
	}
	return *s.lastCycle, true
}

// Running reports whether a cycle is in progress.
func (s *PipelineService) Running() bool {
	return s.running.Load()
}

// Wait blocks until any in-flight cycle completes. Called during shutdown
// after the cron scheduler has stopped issuing ticks.
func (s *PipelineService) Wait() {
	s.inFlight.Wait()
}
