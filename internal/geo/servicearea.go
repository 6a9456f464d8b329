package geo

import (
	"errors"
	"math"
	"strings"
	"time"
)

const earthRadiusKm = 6371.0

// ValidationResult reports whether a point falls inside the service area
// and, when service days are configured, the next day service runs.
type ValidationResult struct {
	Inside         bool    `json:"insideServiceArea"`
	DistanceKm     float64 `json:"distanceKm"`
	NextServiceDay string  `json:"nextServiceDay,omitempty"`
}

// ServiceArea validates coordinates against a radius around a depot and a
// weekly service schedule.
type ServiceArea struct {
	centerLat   float64
	centerLon   float64
	radiusKm    float64
	serviceDays map[time.Weekday]bool
	clock       func() time.Time
}

// ServiceAreaConfig configures the service-area validator. ServiceDays
// holds weekday names ("monday", "tue"); an empty list means every day.
type ServiceAreaConfig struct {
	CenterLat   float64
	CenterLon   float64
	RadiusKm    float64
	ServiceDays []string
	Clock       func() time.Time
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

// NewServiceArea constructs a validator from the configuration.
func NewServiceArea(cfg ServiceAreaConfig) (*ServiceArea, error) {
	if cfg.RadiusKm <= 0 {
		return nil, errors.New("geo: radius must be positive")
	}
	days := make(map[time.Weekday]bool, len(cfg.ServiceDays))
	for _, name := range cfg.ServiceDays {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, errors.New("geo: unknown service day " + name)
		}
		days[day] = true
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ServiceArea{
		centerLat:   cfg.CenterLat,
		centerLon:   cfg.CenterLon,
		radiusKm:    cfg.RadiusKm,
		serviceDays: days,
		clock:       clock,
	}, nil
}

// Validate checks whether the point is inside the service area.
func (s *ServiceArea) Validate(lat, lon float64) ValidationResult {
	distance := haversineKm(s.centerLat, s.centerLon, lat, lon)
	result := ValidationResult{
		Inside:     distance <= s.radiusKm,
		DistanceKm: math.Round(distance*100) / 100,
	}
	if result.Inside {
		result.NextServiceDay = s.nextServiceDay(s.clock())
	}
	return result
}

func (s *ServiceArea) nextServiceDay(now time.Time) string {
	if len(s.serviceDays) == 0 {
		return now.Weekday().String()
	}
	for offset := 0; offset < 7; offset++ {
		day := now.AddDate(0, 0, offset).Weekday()
		if s.serviceDays[day] {
			return day.String()
		}
	}
	return ""
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
