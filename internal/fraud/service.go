package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/pkg/config"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/metrics"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox/payloads"
)

const maxActivityLimit = 200

// Subject identifies whose activity is being evaluated.
type Subject struct {
	ID   string
	Type enums.SubjectType
}

// Decision pairs a signal with the configured policy outcome.
type Decision struct {
	Signal
	Blocked  bool       `json:"blocked"`
	RecordID *uuid.UUID `json:"record_id,omitempty"`
}

// PriceDecision carries the price the caller must charge.
type PriceDecision struct {
	Decision
	ServerPriceMinor    int64          `json:"server_price_minor"`
	EffectivePriceMinor int64          `json:"effective_price_minor"`
	Currency            enums.Currency `json:"currency"`
}

// IPDecision adds the coarse bucket to an IP risk evaluation.
type IPDecision struct {
	Decision
	Bucket enums.IPRiskBucket `json:"bucket"`
}

// LocationStore holds the last geo sample per subject, shared across instances.
type LocationStore interface {
	// Swap stores value and returns the previous one atomically.
	Swap(ctx context.Context, key string, value any, ttl time.Duration) (string, error)
	LastLocationKey(subjectType, subjectID string) string
}

// Service runs the guards, records flagged signals and applies the block policy.
type Service interface {
	VerifyPrice(ctx context.Context, subject Subject, serviceCode string, clientPriceMinor *int64) (*PriceDecision, error)
	ObserveLocation(ctx context.Context, subject Subject, sample Sample) (*Decision, error)
	AssessIP(ctx context.Context, subject Subject, addr string) (*IPDecision, error)
	Activity(ctx context.Context, subject Subject, limit int) ([]models.SuspiciousActivity, error)
}

type ServiceParams struct {
	DB        *gorm.DB
	Repo      Repository
	Locations LocationStore
	Outbox    outbox.Emitter
	Config    config.FraudConfig
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	db        *gorm.DB
	repo      Repository
	locations LocationStore
	outbox    outbox.Emitter
	cfg       config.FraudConfig
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("fraud repository required")
	}
	if params.Locations == nil {
		return nil, fmt.Errorf("location store required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:        params.DB,
		repo:      params.Repo,
		locations: params.Locations,
		outbox:    params.Outbox,
		cfg:       params.Config,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// VerifyPrice loads the catalog price for serviceCode. When the client asserted
// a price that deviates beyond tolerance, the client value is never used: the
// server price is charged when enforcement is on, otherwise the request is blocked.
func (s *service) VerifyPrice(ctx context.Context, subject Subject, serviceCode string, clientPriceMinor *int64) (*PriceDecision, error) {
	serviceCode = strings.TrimSpace(serviceCode)
	if serviceCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service_code is required")
	}
	item, err := s.repo.FindCatalogItem(ctx, serviceCode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load service catalog")
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown service_code").
			WithDetails(map[string]any{"service_code": serviceCode})
	}

	decision := &PriceDecision{
		ServerPriceMinor:    item.PriceMinor,
		EffectivePriceMinor: item.PriceMinor,
		Currency:            item.Currency,
	}
	if clientPriceMinor == nil {
		decision.Signal = Signal{
			Guard:       enums.FraudGuardPriceTamper,
			Explanation: "no client price asserted",
		}
		return decision, nil
	}

	decision.Signal = CheckPrice(item.PriceMinor, *clientPriceMinor, s.cfg.PriceToleranceMinor)
	decision.Signal.Inputs["service_code"] = serviceCode
	if !decision.Flagged && !s.cfg.EnforceServerPrice {
		decision.EffectivePriceMinor = *clientPriceMinor
	}
	decision.Blocked = decision.Flagged && !s.cfg.EnforceServerPrice

	if err := s.record(ctx, subject, &decision.Decision); err != nil {
		return nil, err
	}
	return decision, nil
}

// ObserveLocation compares the sample with the subject's previous one and
// stores it as the new reference point.
func (s *service) ObserveLocation(ctx context.Context, subject Subject, sample Sample) (*Decision, error) {
	if !sample.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid location sample")
	}
	key := s.locations.LastLocationKey(string(subject.Type), subject.ID)

	encoded, err := json.Marshal(sample)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode location")
	}

	var prev *Sample
	raw, err := s.locations.Swap(ctx, key, string(encoded), s.cfg.LocationTTL)
	switch {
	case err == nil:
		var stored Sample
		if jsonErr := json.Unmarshal([]byte(raw), &stored); jsonErr == nil {
			prev = &stored
		}
	case errors.Is(err, redis.Nil):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "swap last location")
	}

	decision := &Decision{}
	if prev == nil {
		decision.Signal = Signal{
			Guard:       enums.FraudGuardImpossibleTravel,
			Explanation: "first observed location",
		}
		return decision, nil
	}

	decision.Signal = CheckTravel(*prev, sample, s.cfg.MaxSpeedKmh, s.cfg.MinDistanceKm)
	decision.Blocked = decision.Flagged && s.cfg.BlockScore > 0
	if err := s.record(ctx, subject, decision); err != nil {
		return nil, err
	}
	return decision, nil
}

// AssessIP scores the source address. It blocks only when a BlockScore is
// configured and the score reaches it.
func (s *service) AssessIP(ctx context.Context, subject Subject, addr string) (*IPDecision, error) {
	signal, bucket := ScoreIP(addr)
	decision := &IPDecision{
		Decision: Decision{Signal: signal},
		Bucket:   bucket,
	}
	decision.Blocked = s.cfg.BlockScore > 0 && signal.Risk >= float64(s.cfg.BlockScore)
	if err := s.record(ctx, subject, &decision.Decision); err != nil {
		return nil, err
	}
	return decision, nil
}

// record always logs and counts the evaluation; flagged ones are persisted and
// published in one transaction.
func (s *service) record(ctx context.Context, subject Subject, decision *Decision) error {
	s.metrics.IncFraudSignal(string(decision.Guard), decision.Flagged)
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"guard":        decision.Guard,
			"subject_id":   subject.ID,
			"subject_type": subject.Type,
			"flagged":      decision.Flagged,
			"blocked":      decision.Blocked,
			"risk":         decision.Risk,
		})
		if decision.Flagged {
			s.logg.Warn(logCtx, decision.Explanation)
		} else {
			s.logg.Debug(logCtx, decision.Explanation)
		}
	}
	if !decision.Flagged {
		return nil
	}

	inputs, err := json.Marshal(decision.Inputs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode guard inputs")
	}
	record := &models.SuspiciousActivity{
		ID:          uuid.New(),
		SubjectID:   subject.ID,
		SubjectType: subject.Type,
		Guard:       decision.Guard,
		RiskValue:   math.Min(decision.Risk, math.MaxFloat64),
		Flagged:     true,
		Explanation: decision.Explanation,
		Inputs:      inputs,
		CreatedAt:   s.now().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Record(ctx, record); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSuspiciousActivity,
			AggregateType: enums.AggregateSuspiciousActivity,
			AggregateID:   record.ID,
			Data: payloads.SuspiciousActivityFlaggedEvent{
				RecordID:    record.ID,
				SubjectID:   record.SubjectID,
				SubjectType: record.SubjectType,
				Guard:       record.Guard,
				RiskValue:   record.RiskValue,
				Explanation: record.Explanation,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record suspicious activity")
	}
	decision.RecordID = &record.ID
	return nil
}

// Activity returns the newest suspicious activity records for a subject.
func (s *service) Activity(ctx context.Context, subject Subject, limit int) ([]models.SuspiciousActivity, error) {
	if strings.TrimSpace(subject.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject id is required")
	}
	if subject.Type == "" {
		subject.Type = enums.SubjectUser
	}
	if limit <= 0 || limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	records, err := s.repo.ListBySubject(ctx, subject.Type, subject.ID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list suspicious activity")
	}
	return records, nil
}
