// internal/services/matching_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/retailradar/arbitrage-backend/internal/cache"
	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/metrics"
	"github.com/retailradar/arbitrage-backend/internal/models"
)

// ErrSameRetailer rejects candidate pairs from a single retailer before any
// scoring happens; cross-retailer identity is the only kind the matcher
// asserts.
var ErrSameRetailer = errors.New("candidate pair is from the same retailer")

// EmbeddingProvider supplies semantic text vectors. It is an optional
// collaborator: a nil provider or a failing call degrades scoring to the
// lexical signal alone.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// tokens ignored by the lexical similarity measure.
var lexicalStopwords = map[string]bool{
	"de": true, "la": true, "el": true, "los": true, "las": true,
	"con": true, "para": true, "y": true, "en": true, "o": true,
	"the": true, "with": true, "and": true, "of": true,
}

type scoredPair struct {
	Score      float64            `json:"score"`
	SubScores  map[string]float64 `json:"sub_scores"`
	Decision   string             `json:"decision"`
	Confidence string             `json:"confidence"`
	MatchType  string             `json:"match_type"`
	ScoredAt   time.Time          `json:"scored_at"`
}

const decisionDiscarded = "discarded"

// MatchingService scores cross-retailer candidate pairs and persists the
// verdicts. Weights and thresholds come from configuration; the scorer holds
// no policy constants of its own.
type MatchingService struct {
	db       *gorm.DB
	cfg      config.MatchingConfig
	cache    *cache.MultiLevelCache
	embedder EmbeddingProvider

	embedDegraded sync.Once
}

func NewMatchingService(db *gorm.DB, cfg config.MatchingConfig, mlc *cache.MultiLevelCache, embedder EmbeddingProvider) *MatchingService {
	return &MatchingService{
		db:       db,
		cfg:      cfg,
		cache:    mlc,
		embedder: embedder,
	}
}

// FindCandidates returns active entities from other retailers that share a
// brand or category with the given entity, bounding the pairwise work per
// cycle.
func (s *MatchingService) FindCandidates(entity *models.Entity, limit int) ([]models.Entity, error) {
	var candidates []models.Entity
	query := s.db.Where("retailer <> ? AND active = ?", entity.Retailer, true)

	switch {
	case entity.Brand != "" && entity.Category != "":
		query = query.Where("brand = ? OR category = ?", entity.Brand, entity.Category)
	case entity.Brand != "":
		query = query.Where("brand = ?", entity.Brand)
	case entity.Category != "":
		query = query.Where("category = ?", entity.Category)
	}

	if err := query.Order("last_seen_at DESC").Limit(limit).Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to find match candidates: %w", err)
	}
	return candidates, nil
}

// ScorePair scores one cross-retailer pair and stores the verdict. Pairs
// below the discard floor return (nil, nil) and are not persisted; pairs in
// the audit band persist as rejected; pairs at or above the acceptance
// threshold persist as accepted. The cache absorbs repeated scoring of the
// same pair across overlapping tier windows.
func (s *MatchingService) ScorePair(ctx context.Context, a, b *models.Entity, bestPriceA, bestPriceB int64) (*models.MatchCandidate, error) {
	if a.Retailer == b.Retailer {
		return nil, ErrSameRetailer
	}

	pairKey := models.PairKey(a.ID, b.ID)
	if cached, err := s.cache.Get(ctx, pairKey); err == nil {
		var entry scoredPair
		if err := json.Unmarshal(cached, &entry); err == nil {
			if entry.Decision == decisionDiscarded {
				return nil, nil
			}
			return s.loadStored(a.ID, b.ID)
		}
	}

	subScores := map[string]float64{
		"text":     s.textSimilarity(ctx, a, b),
		"brand":    brandScore(a, b),
		"category": categoryScore(a, b),
		"specs":    specScore(a, b),
		"price":    s.priceProximity(bestPriceA, bestPriceB),
	}

	score := s.cfg.WeightText*subScores["text"] +
		s.cfg.WeightBrand*subScores["brand"] +
		s.cfg.WeightCategory*subScores["category"] +
		s.cfg.WeightSpecs*subScores["specs"] +
		s.cfg.WeightPrice*subScores["price"]
	score = math.Max(0, math.Min(1, score))

	if score < s.cfg.DiscardFloor {
		s.cacheVerdict(ctx, pairKey, scoredPair{
			Score:     score,
			SubScores: subScores,
			Decision:  decisionDiscarded,
			ScoredAt:  time.Now(),
		}, a.ID, b.ID)
		metrics.MatchesScored.WithLabelValues(decisionDiscarded).Inc()
		return nil, nil
	}

	decision := models.MatchDecisionRejected
	if score >= s.cfg.AcceptThreshold {
		decision = models.MatchDecisionAccepted
	}

	loID, hiID := models.CanonicalPair(a.ID, b.ID)
	retailerLo, retailerHi := a.Retailer, b.Retailer
	if loID != a.ID {
		retailerLo, retailerHi = b.Retailer, a.Retailer
	}

	candidate := &models.MatchCandidate{
		EntityAID:  loID,
		EntityBID:  hiID,
		RetailerA:  retailerLo,
		RetailerB:  retailerHi,
		Score:      score,
		SubScores:  toJSONB(subScores),
		Decision:   decision,
		Confidence: confidenceTier(score),
		MatchType:  matchType(score),
		TimesSeen:  1,
		LastScored: time.Now(),
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "entity_a_id"}, {Name: "entity_b_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"retailer_a":  candidate.RetailerA,
			"retailer_b":  candidate.RetailerB,
			"score":       candidate.Score,
			"sub_scores":  candidate.SubScores,
			"decision":    candidate.Decision,
			"confidence":  candidate.Confidence,
			"match_type":  candidate.MatchType,
			"last_scored": candidate.LastScored,
			"times_seen":  gorm.Expr("match_candidates.times_seen + 1"),
			"updated_at":  time.Now(),
		}),
	}).Create(candidate).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert match candidate: %w", err)
	}

	s.cacheVerdict(ctx, pairKey, scoredPair{
		Score:      score,
		SubScores:  subScores,
		Decision:   string(decision),
		Confidence: string(candidate.Confidence),
		MatchType:  string(candidate.MatchType),
		ScoredAt:   candidate.LastScored,
	}, a.ID, b.ID)

	metrics.MatchesScored.WithLabelValues(string(decision)).Inc()
	return candidate, nil
}

// AcceptedMatches returns the accepted matches touching an entity.
func (s *MatchingService) AcceptedMatches(entityID string) ([]models.MatchCandidate, error) {
	var matches []models.MatchCandidate
	err := s.db.
		Where("(entity_a_id = ? OR entity_b_id = ?) AND decision = ?",
			entityID, entityID, models.MatchDecisionAccepted).
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load accepted matches: %w", err)
	}
	return matches, nil
}

// PrewarmStored copies an entity's stored accepted verdicts into the
// predictive cache layer ahead of its next evaluation window, so the first
// scorer calls of the next cycle start warm.
func (s *MatchingService) PrewarmStored(ctx context.Context, entityID string) error {
	matches, err := s.AcceptedMatches(entityID)
	if err != nil {
		return err
	}

	for i := range matches {
		m := &matches[i]
		entry := scoredPair{
			Score:      m.Score,
			SubScores:  fromJSONB(m.SubScores),
			Decision:   string(m.Decision),
			Confidence: string(m.Confidence),
			MatchType:  string(m.MatchType),
			ScoredAt:   m.LastScored,
		}
		payload, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		s.cache.SetPredictive(ctx, models.PairKey(m.EntityAID, m.EntityBID), payload)
	}
	return nil
}

// CountAcceptedMatches reports how many accepted matches an entity appears
// in. The scheduler reads this as the popularity signal.
func (s *MatchingService) CountAcceptedMatches(entityID string) (int64, error) {
	var count int64
	err := s.db.Model(&models.MatchCandidate{}).
		Where("(entity_a_id = ? OR entity_b_id = ?) AND decision = ?",
			entityID, entityID, models.MatchDecisionAccepted).
		Count(&count).Error
	return count, err
}

func (s *MatchingService) loadStored(aID, bID string) (*models.MatchCandidate, error) {
	loID, hiID := models.CanonicalPair(aID, bID)
	var candidate models.MatchCandidate
	err := s.db.Where("entity_a_id = ? AND entity_b_id = ?", loID, hiID).First(&candidate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load match candidate: %w", err)
	}
	return &candidate, nil
}

func (s *MatchingService) cacheVerdict(ctx context.Context, pairKey string, entry scoredPair, entityIDs ...string) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	volatility := 0.0
	for _, id := range entityIDs {
		if vol, ok := s.cache.GetVolatility(ctx, id); ok && vol > volatility {
			volatility = vol
		}
	}
	s.cache.Set(ctx, pairKey, payload, volatility, entityIDs...)
}

// textSimilarity blends the optional embedding signal with lexical overlap.
// When no embedding provider is configured, or a call fails, the lexical
// measure takes the full text weight.
func (s *MatchingService) textSimilarity(ctx context.Context, a, b *models.Entity) float64 {
	lexical := lexicalSimilarity(a.NormalizedName, b.NormalizedName)

	if s.embedder == nil {
		return lexical
	}

	vecA, errA := s.embedder.Embed(ctx, a.NormalizedName)
	vecB, errB := s.embedder.Embed(ctx, b.NormalizedName)
	if errA != nil || errB != nil {
		s.embedDegraded.Do(func() {
			logrus.Warn("Embedding provider unavailable, falling back to lexical similarity")
		})
		return lexical
	}

	semantic := cosineSimilarity(vecA, vecB)
	return s.cfg.EmbeddingShare*semantic + (1-s.cfg.EmbeddingShare)*lexical
}

// lexicalSimilarity measures token overlap between two normalized names:
// exact names score 1.0, containment 0.8, otherwise Jaccard over non-stopword
// tokens with a 0.1 floor for non-empty inputs.
func lexicalSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	tokensA := lexicalTokens(a)
	tokensB := lexicalTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.1
	}

	intersection := 0
	for token := range tokensA {
		if tokensB[token] {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection
	sim := float64(intersection) / float64(union)
	if sim < 0.1 {
		sim = 0.1
	}
	return sim
}

func lexicalTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.Fields(text) {
		if len(field) < 2 || lexicalStopwords[field] {
			continue
		}
		tokens[field] = true
	}
	return tokens
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// brandScore is binary when both sides declare a brand; a missing side is
// neutral rather than penalized.
func brandScore(a, b *models.Entity) float64 {
	if a.Brand == "" || b.Brand == "" {
		return 0.5
	}
	if strings.EqualFold(a.Brand, b.Brand) {
		return 1.0
	}
	return 0.0
}

func categoryScore(a, b *models.Entity) float64 {
	if a.Category == "" && b.Category == "" {
		return 0.5
	}
	if a.Category == b.Category {
		return 1.0
	}
	return 0.3
}

// specScore compares spec tokens per kind (storage, memory, screen, camera,
// battery). Kinds present on both sides contribute their overlap; kinds one
// side lacks are neutral, so sparse listings are not punished.
func specScore(a, b *models.Entity) float64 {
	kindsA := specKinds(a.SpecTokens)
	kindsB := specKinds(b.SpecTokens)

	shared := 0
	total := 0.0
	for kind, setA := range kindsA {
		setB, ok := kindsB[kind]
		if !ok {
			continue
		}
		shared++
		intersection := 0
		for token := range setA {
			if setB[token] {
				intersection++
			}
		}
		union := len(setA) + len(setB) - intersection
		total += float64(intersection) / float64(union)
	}

	if shared == 0 {
		return 0.5
	}
	return total / float64(shared)
}

func specKinds(tokens []string) map[string]map[string]bool {
	kinds := make(map[string]map[string]bool)
	add := func(kind, token string) {
		if kinds[kind] == nil {
			kinds[kind] = make(map[string]bool)
		}
		kinds[kind][token] = true
	}

	for _, token := range tokens {
		switch {
		case strings.HasSuffix(token, "-ram"):
			add("memory", token)
		case strings.HasSuffix(token, "gb"), strings.HasSuffix(token, "tb"):
			add("storage", token)
		case strings.HasSuffix(token, "in"):
			add("screen", token)
		case strings.HasSuffix(token, "mp"):
			add("camera", token)
		case strings.HasSuffix(token, "mah"):
			add("battery", token)
		}
	}
	return kinds
}

// priceProximity dampens matches between wildly divergent prices. The step
// function rewards close prices and zeroes out pairs beyond the configured
// maximum ratio; a missing price on either side is neutral.
func (s *MatchingService) priceProximity(priceA, priceB int64) float64 {
	if priceA <= 0 || priceB <= 0 {
		return 0.5
	}

	lo, hi := float64(priceA), float64(priceB)
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi/lo > s.cfg.MaxPriceRatio {
		return 0.0
	}

	ratio := lo / hi
	switch {
	case ratio >= 0.8:
		return 1.0
	case ratio >= 0.6:
		return 0.7
	case ratio >= 0.4:
		return 0.4
	default:
		return 0.1
	}
}

func confidenceTier(score float64) models.ConfidenceTier {
	switch {
	case score >= 0.90:
		return models.ConfidenceTierHigh
	case score >= 0.80:
		return models.ConfidenceTierMedium
	default:
		return models.ConfidenceTierLow
	}
}

func matchType(score float64) models.MatchType {
	switch {
	case score >= 0.95:
		return models.MatchTypeExact
	case score >= 0.90:
		return models.MatchTypeSimilar
	case score >= 0.85:
		return models.MatchTypeVariant
	default:
		return models.MatchTypeCategory
	}
}

func toJSONB(values map[string]float64) models.JSONB {
	jsonb := make(models.JSONB, len(values))
	for k, v := range values {
		jsonb[k] = v
	}
	return jsonb
}

func fromJSONB(jsonb models.JSONB) map[string]float64 {
	values := make(map[string]float64, len(jsonb))
	for k, v := range jsonb {
		if f, ok := v.(float64); ok {
			values[k] = f
		}
	}
	return values
}
