// Package geo 计算两点间的大圆距离（haversine）。
package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"

	"GeoCheckin/pkg/errors"
)

// EarthRadiusMeters 平均地球半径
const EarthRadiusMeters = 6371000.0

// Distance 返回两点之间的 haversine 距离，单位米
func Distance(lat1, lon1, lat2, lon2 float64) (float64, error) {
	if err := ValidateCoordinate(lat1, lon1); err != nil {
		return 0, err
	}
	if err := ValidateCoordinate(lat2, lon2); err != nil {
		return 0, err
	}

	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusMeters, nil
}

// WithinRadius 边界值视为在范围内
func WithinRadius(distanceMeters, radiusMeters float64) bool {
	return distanceMeters <= radiusMeters
}

// ValidateCoordinate 校验经纬度有限且在合法区间
func ValidateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return fmt.Errorf("non-finite coordinate (%v, %v): %w", lat, lon, errors.InvalidCoordinate)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range: %w", lat, errors.InvalidCoordinate)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range: %w", lon, errors.InvalidCoordinate)
	}
	return nil
}
