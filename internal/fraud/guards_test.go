package fraud

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

func TestCheckPrice(t *testing.T) {
	tests := []struct {
		name      string
		server    int64
		client    int64
		tolerance int64
		flagged   bool
		risk      float64
	}{
		{name: "tampered below server price", server: 15000, client: 9000, tolerance: 1000, flagged: true, risk: 6000},
		{name: "within tolerance", server: 15000, client: 14500, tolerance: 1000, flagged: false, risk: 500},
		{name: "exact tolerance is allowed", server: 15000, client: 16000, tolerance: 1000, flagged: false, risk: 1000},
		{name: "overpaying beyond tolerance", server: 15000, client: 20000, tolerance: 1000, flagged: true, risk: 5000},
		{name: "negative tolerance treated as zero", server: 100, client: 101, tolerance: -5, flagged: true, risk: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := CheckPrice(tt.server, tt.client, tt.tolerance)
			assert.Equal(t, enums.FraudGuardPriceTamper, signal.Guard)
			assert.Equal(t, tt.flagged, signal.Flagged)
			assert.Equal(t, tt.risk, signal.Risk)
			assert.NotEmpty(t, signal.Explanation)
		})
	}
}

func TestHaversineKm(t *testing.T) {
	jakarta := Sample{Lat: -6.2088, Lng: 106.8456}
	singapore := Sample{Lat: 1.3521, Lng: 103.8198}

	assert.InDelta(t, 905, HaversineKm(jakarta, singapore), 5)
	assert.InDelta(t, 0, HaversineKm(jakarta, jakarta), 1e-9)
}

func TestCheckTravel(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	jakarta := Sample{Lat: -6.2088, Lng: 106.8456, At: base}

	t.Run("jakarta to singapore in ten minutes", func(t *testing.T) {
		next := Sample{Lat: 1.3521, Lng: 103.8198, At: base.Add(10 * time.Minute)}
		signal := CheckTravel(jakarta, next, 900, 50)
		assert.True(t, signal.Flagged)
		assert.Greater(t, signal.Risk, 900.0)
	})

	t.Run("same trip over two hours is plausible", func(t *testing.T) {
		next := Sample{Lat: 1.3521, Lng: 103.8198, At: base.Add(2 * time.Hour)}
		signal := CheckTravel(jakarta, next, 900, 50)
		assert.False(t, signal.Flagged)
	})

	t.Run("gps jitter below noise floor", func(t *testing.T) {
		next := Sample{Lat: -6.2188, Lng: 106.8556, At: base.Add(time.Second)}
		signal := CheckTravel(jakarta, next, 900, 50)
		assert.False(t, signal.Flagged)
		assert.Greater(t, signal.Risk, 900.0)
	})

	t.Run("zero elapsed time over long distance", func(t *testing.T) {
		next := Sample{Lat: 1.3521, Lng: 103.8198, At: base}
		signal := CheckTravel(jakarta, next, 900, 50)
		assert.True(t, signal.Flagged)
		assert.Equal(t, math.MaxFloat64, signal.Risk)
		assert.Contains(t, signal.Explanation, "no elapsed time")
	})
}

func TestScoreIP(t *testing.T) {
	tests := []struct {
		addr   string
		bucket enums.IPRiskBucket
		score  float64
	}{
		{addr: "34.101.20.4", bucket: enums.IPRiskDatacenter, score: ScoreDatacenter},
		{addr: "185.220.101.7", bucket: enums.IPRiskDatacenter, score: ScoreDatacenter},
		{addr: "2600:1f18::1", bucket: enums.IPRiskDatacenter, score: ScoreDatacenter},
		{addr: "36.72.10.10", bucket: enums.IPRiskResidential, score: ScoreResidential},
		{addr: "::ffff:114.124.1.1", bucket: enums.IPRiskResidential, score: ScoreResidential},
		{addr: "81.2.69.142", bucket: enums.IPRiskUnknown, score: ScoreUnknown},
		{addr: "10.0.0.1", bucket: enums.IPRiskUnknown, score: ScoreUnknown},
		{addr: "not-an-ip", bucket: enums.IPRiskUnknown, score: ScoreUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			signal, bucket := ScoreIP(tt.addr)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.score, signal.Risk)
			assert.Equal(t, bucket == enums.IPRiskDatacenter, signal.Flagged)
		})
	}
}
