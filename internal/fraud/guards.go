// Package fraud holds the integrity guards consulted around financial flows.
// The evaluators in this file are pure; Service records their signals.
package fraud

import (
	"fmt"
	"math"
	"net/netip"
	"time"

	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

const earthRadiusKm = 6371.0

// IP risk scores per bucket.
const (
	ScoreResidential = 10
	ScoreUnknown     = 50
	ScoreDatacenter  = 80
)

// Signal is the advisory output of one guard evaluation.
type Signal struct {
	Guard       enums.FraudGuard `json:"guard"`
	Flagged     bool             `json:"flagged"`
	Risk        float64          `json:"risk"`
	Explanation string           `json:"explanation"`
	Inputs      map[string]any   `json:"inputs,omitempty"`
}

// Sample is one observed position of a subject.
type Sample struct {
	Lat float64   `json:"lat"`
	Lng float64   `json:"lng"`
	At  time.Time `json:"at"`
}

// Valid reports whether the coordinates are on the globe and the sample is timestamped.
func (s Sample) Valid() bool {
	return s.Lat >= -90 && s.Lat <= 90 && s.Lng >= -180 && s.Lng <= 180 && !s.At.IsZero()
}

// CheckPrice compares a client-asserted price with the authoritative one. The
// risk value is the absolute deviation in minor units.
func CheckPrice(serverPriceMinor, clientPriceMinor, toleranceMinor int64) Signal {
	deviation := clientPriceMinor - serverPriceMinor
	if deviation < 0 {
		deviation = -deviation
	}
	if toleranceMinor < 0 {
		toleranceMinor = 0
	}
	signal := Signal{
		Guard:   enums.FraudGuardPriceTamper,
		Flagged: deviation > toleranceMinor,
		Risk:    float64(deviation),
		Inputs: map[string]any{
			"server_price_minor": serverPriceMinor,
			"client_price_minor": clientPriceMinor,
			"tolerance_minor":    toleranceMinor,
		},
	}
	if signal.Flagged {
		signal.Explanation = fmt.Sprintf("client price %d deviates from server price %d by %d (tolerance %d)",
			clientPriceMinor, serverPriceMinor, deviation, toleranceMinor)
	} else {
		signal.Explanation = "client price within tolerance"
	}
	return signal
}

// HaversineKm is the great-circle distance between two samples.
func HaversineKm(a, b Sample) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// CheckTravel flags a pair of samples whose implied speed exceeds maxSpeedKmh
// over a distance larger than the minDistanceKm noise floor. The risk value is
// the implied speed in km/h.
func CheckTravel(prev, next Sample, maxSpeedKmh, minDistanceKm float64) Signal {
	distance := HaversineKm(prev, next)
	elapsed := next.At.Sub(prev.At)
	if elapsed < 0 {
		elapsed = -elapsed
	}

	var speed float64
	switch {
	case elapsed > 0:
		speed = distance / elapsed.Hours()
	case distance > 0:
		speed = math.Inf(1)
	}

	signal := Signal{
		Guard:   enums.FraudGuardImpossibleTravel,
		Flagged: distance > minDistanceKm && speed > maxSpeedKmh,
		Risk:    speed,
		Inputs: map[string]any{
			"distance_km":     round2(distance),
			"elapsed_seconds": elapsed.Seconds(),
			"max_speed_kmh":   maxSpeedKmh,
			"min_distance_km": minDistanceKm,
		},
	}
	if math.IsInf(speed, 1) {
		// JSON cannot encode +Inf.
		signal.Risk = math.MaxFloat64
	}
	switch {
	case !signal.Flagged:
		signal.Explanation = "travel speed plausible"
	case elapsed == 0:
		signal.Explanation = fmt.Sprintf("moved %.1f km with no elapsed time", distance)
	default:
		signal.Explanation = fmt.Sprintf("moved %.1f km in %s (%.0f km/h exceeds %.0f km/h)",
			distance, elapsed.Round(time.Second), speed, maxSpeedKmh)
	}
	return signal
}

// ScoreIP buckets a source address using static range tables.
func ScoreIP(raw string) (Signal, enums.IPRiskBucket) {
	bucket := classifyIP(raw)
	score := ScoreUnknown
	switch bucket {
	case enums.IPRiskResidential:
		score = ScoreResidential
	case enums.IPRiskDatacenter:
		score = ScoreDatacenter
	}
	return Signal{
		Guard:       enums.FraudGuardIPRisk,
		Flagged:     bucket == enums.IPRiskDatacenter,
		Risk:        float64(score),
		Explanation: fmt.Sprintf("address classified as %s", bucket),
		Inputs: map[string]any{
			"ip":     raw,
			"bucket": bucket,
		},
	}, bucket
}

func classifyIP(raw string) enums.IPRiskBucket {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return enums.IPRiskUnknown
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return enums.IPRiskUnknown
	}
	for _, prefix := range datacenterPrefixes {
		if prefix.Contains(addr) {
			return enums.IPRiskDatacenter
		}
	}
	for _, prefix := range residentialPrefixes {
		if prefix.Contains(addr) {
			return enums.IPRiskResidential
		}
	}
	return enums.IPRiskUnknown
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
