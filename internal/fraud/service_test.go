package fraud

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/pkg/config"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/metrics"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
)

type memoryLocations struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memoryLocations) Swap(_ context.Context, key string, value any, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.values[key]
	m.values[key] = value.(string)
	if !ok {
		return "", redis.Nil
	}
	return prev, nil
}

func (m *memoryLocations) LastLocationKey(subjectType, subjectID string) string {
	return "geo:" + subjectType + ":" + subjectID
}

func newTestService(t *testing.T, cfg config.FraudConfig) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	require.NoError(t, conn.Create(&models.ServiceCatalogItem{
		Code: "SAME_DAY", Name: "Same-day delivery", PriceMinor: 15000, Currency: enums.CurrencyIDR, Active: true,
	}).Error)

	svc, err := NewService(ServiceParams{
		DB:        conn,
		Repo:      NewRepository(conn),
		Locations: &memoryLocations{values: map[string]string{}},
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Config:    cfg,
		Metrics:   metrics.NewLedgerMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return svc, conn
}

func defaultFraudConfig() config.FraudConfig {
	return config.FraudConfig{
		PriceToleranceMinor: 1000,
		EnforceServerPrice:  true,
		MaxSpeedKmh:         900,
		MinDistanceKm:       50,
		LocationTTL:         time.Hour,
	}
}

func countRecords(t *testing.T, conn *gorm.DB, guard enums.FraudGuard) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.SuspiciousActivity{}).Where("guard = ?", guard).Count(&count).Error)
	return count
}

func TestVerifyPriceTamperUsesServerPrice(t *testing.T) {
	svc, conn := newTestService(t, defaultFraudConfig())
	subject := Subject{ID: "partner-1", Type: enums.SubjectPartner}
	client := int64(9000)

	decision, err := svc.VerifyPrice(context.Background(), subject, "SAME_DAY", &client)
	require.NoError(t, err)
	assert.True(t, decision.Flagged)
	assert.False(t, decision.Blocked)
	assert.Equal(t, int64(15000), decision.EffectivePriceMinor)
	require.NotNil(t, decision.RecordID)
	assert.Equal(t, int64(1), countRecords(t, conn, enums.FraudGuardPriceTamper))

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSuspiciousActivity).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestVerifyPriceWithoutEnforcementBlocksTamper(t *testing.T) {
	cfg := defaultFraudConfig()
	cfg.EnforceServerPrice = false
	svc, _ := newTestService(t, cfg)
	subject := Subject{ID: "partner-1", Type: enums.SubjectPartner}

	tampered := int64(9000)
	decision, err := svc.VerifyPrice(context.Background(), subject, "SAME_DAY", &tampered)
	require.NoError(t, err)
	assert.True(t, decision.Blocked)
	assert.Equal(t, int64(15000), decision.EffectivePriceMinor)

	nearby := int64(14800)
	decision, err = svc.VerifyPrice(context.Background(), subject, "SAME_DAY", &nearby)
	require.NoError(t, err)
	assert.False(t, decision.Flagged)
	assert.Equal(t, int64(14800), decision.EffectivePriceMinor)
}

func TestVerifyPriceUnknownServiceAndNoClientPrice(t *testing.T) {
	svc, conn := newTestService(t, defaultFraudConfig())
	subject := Subject{ID: "partner-1", Type: enums.SubjectPartner}

	_, err := svc.VerifyPrice(context.Background(), subject, "TELEPORT", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	decision, err := svc.VerifyPrice(context.Background(), subject, "SAME_DAY", nil)
	require.NoError(t, err)
	assert.False(t, decision.Flagged)
	assert.Equal(t, int64(15000), decision.EffectivePriceMinor)
	assert.Equal(t, int64(0), countRecords(t, conn, enums.FraudGuardPriceTamper))
}

func TestObserveLocationFlagsImpossibleTravel(t *testing.T) {
	svc, conn := newTestService(t, defaultFraudConfig())
	subject := Subject{ID: "user-1", Type: enums.SubjectUser}
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	first, err := svc.ObserveLocation(context.Background(), subject, Sample{Lat: -6.2088, Lng: 106.8456, At: base})
	require.NoError(t, err)
	assert.False(t, first.Flagged)

	second, err := svc.ObserveLocation(context.Background(), subject, Sample{Lat: 1.3521, Lng: 103.8198, At: base.Add(5 * time.Minute)})
	require.NoError(t, err)
	assert.True(t, second.Flagged)
	assert.False(t, second.Blocked)
	assert.Equal(t, int64(1), countRecords(t, conn, enums.FraudGuardImpossibleTravel))

	_, err = svc.ObserveLocation(context.Background(), subject, Sample{Lat: 120, Lng: 0, At: base})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAssessIPPolicyThreshold(t *testing.T) {
	svc, conn := newTestService(t, defaultFraudConfig())
	subject := Subject{ID: "user-1", Type: enums.SubjectUser}

	advisory, err := svc.AssessIP(context.Background(), subject, "34.101.20.4")
	require.NoError(t, err)
	assert.Equal(t, enums.IPRiskDatacenter, advisory.Bucket)
	assert.False(t, advisory.Blocked)

	cfg := defaultFraudConfig()
	cfg.BlockScore = 80
	strict, _ := newTestService(t, cfg)
	blocked, err := strict.AssessIP(context.Background(), subject, "34.101.20.4")
	require.NoError(t, err)
	assert.True(t, blocked.Blocked)

	residential, err := strict.AssessIP(context.Background(), subject, "36.72.10.10")
	require.NoError(t, err)
	assert.False(t, residential.Blocked)
	assert.False(t, residential.Flagged)

	assert.Equal(t, int64(1), countRecords(t, conn, enums.FraudGuardIPRisk))
}

func TestActivityListsSubjectRecordsNewestFirst(t *testing.T) {
	svc, _ := newTestService(t, defaultFraudConfig())
	ctx := context.Background()
	subject := Subject{ID: "partner-7", Type: enums.SubjectPartner}
	tampered := int64(9000)

	_, err := svc.VerifyPrice(ctx, subject, "SAME_DAY", &tampered)
	require.NoError(t, err)
	_, err = svc.AssessIP(ctx, subject, "34.101.20.4")
	require.NoError(t, err)
	_, err = svc.AssessIP(ctx, Subject{ID: "someone-else", Type: enums.SubjectPartner}, "34.101.20.4")
	require.NoError(t, err)

	records, err := svc.Activity(ctx, subject, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, "partner-7", record.SubjectID)
		assert.True(t, record.Flagged)
	}

	limited, err := svc.Activity(ctx, subject, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = svc.Activity(ctx, Subject{}, 10)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
