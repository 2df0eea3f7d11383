// Package geotile maps WGS84 coordinates to quadtree tiles and back.
//
// Tiles follow the usual spherical-Mercator pyramid: at level n the world
// is a 2^n × 2^n grid, and a tile is addressed by a base-4 quadkey of n
// digits. Quadkeys double as MQTT topic path segments once rendered with
// QuadKeyToTopic.
package geotile

import (
	"fmt"
	"math"
	"strings"
)

const (
	// MinLevel and MaxLevel bound the supported zoom range.
	MinLevel = 1
	MaxLevel = 22

	// Mercator latitude clamp.
	minLatitude = -85.05112878
	maxLatitude = 85.05112878

	tileSize = 256.0
)

// LatLngToQuadKey projects a position onto the tile grid at the given
// level and returns its quadkey. Coordinates outside the WGS84 domain or
// a level outside [MinLevel, MaxLevel] are caller errors.
func LatLngToQuadKey(lat, lng float64, level int) (string, error) {
	if level < MinLevel || level > MaxLevel {
		return "", fmt.Errorf("geotile: level %d out of range [%d, %d]", level, MinLevel, MaxLevel)
	}
	if lat < -90 || lat > 90 || math.IsNaN(lat) {
		return "", fmt.Errorf("geotile: latitude %v out of range [-90, 90]", lat)
	}
	if lng < -180 || lng > 180 || math.IsNaN(lng) {
		return "", fmt.Errorf("geotile: longitude %v out of range [-180, 180]", lng)
	}
	x, y := tileXY(lat, lng, level)
	return encodeQuadKey(x, y, level), nil
}

// QuadKeyToLatLng returns the latitude/longitude of the upper-left corner
// of the tile addressed by the quadkey.
func QuadKeyToLatLng(quadKey string) (lat, lng float64, err error) {
	x, y, level, err := decodeQuadKey(quadKey)
	if err != nil {
		return 0, 0, err
	}
	mapSize := float64(uint64(tileSize) << uint(level))
	px := clip(float64(x)*tileSize, 0, mapSize-1)
	py := clip(float64(y)*tileSize, 0, mapSize-1)

	fx := clip(px/mapSize-0.5, -0.5, 0.5)
	fy := 0.5 - clip(py/mapSize, 0, 1)

	lat = 90 - 360*math.Atan(math.Exp(-fy*2*math.Pi))/math.Pi
	lng = 360 * fx
	return lat, lng, nil
}

// QuadKeyToNeighbors returns the quadkeys of the up-to-8 adjacent tiles
// at the same level. Tiles at the grid edge have fewer neighbors; the
// source tile is never included.
func QuadKeyToNeighbors(quadKey string) ([]string, error) {
	x, y, level, err := decodeQuadKey(quadKey)
	if err != nil {
		return nil, err
	}
	max := int64(1)<<uint(level) - 1
	neighbors := make([]string, 0, 8)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx > max || ny < 0 || ny > max {
				continue
			}
			neighbors = append(neighbors, encodeQuadKey(nx, ny, level))
		}
	}
	return neighbors, nil
}

// QuadKeyToTopic renders a quadkey as a '/'-delimited topic path segment,
// e.g. "1202" -> "1/2/0/2".
func QuadKeyToTopic(quadKey string) string {
	if quadKey == "" {
		return ""
	}
	var sb strings.Builder
	sb.Grow(2*len(quadKey) - 1)
	for i, d := range quadKey {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteRune(d)
	}
	return sb.String()
}

func tileXY(lat, lng float64, level int) (int64, int64) {
	lat = clip(lat, minLatitude, maxLatitude)
	lng = clip(lng, -180, 180)

	fx := (lng + 180) / 360
	sinLat := math.Sin(lat * math.Pi / 180)
	fy := 0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)

	mapSize := float64(uint64(tileSize) << uint(level))
	px := clip(fx*mapSize+0.5, 0, mapSize-1)
	py := clip(fy*mapSize+0.5, 0, mapSize-1)
	return int64(px / tileSize), int64(py / tileSize)
}

func encodeQuadKey(x, y int64, level int) string {
	digits := make([]byte, level)
	for i := level; i > 0; i-- {
		var digit byte
		mask := int64(1) << uint(i-1)
		if x&mask != 0 {
			digit++
		}
		if y&mask != 0 {
			digit += 2
		}
		digits[level-i] = '0' + digit
	}
	return string(digits)
}

func decodeQuadKey(quadKey string) (x, y int64, level int, err error) {
	level = len(quadKey)
	if level < MinLevel || level > MaxLevel {
		return 0, 0, 0, fmt.Errorf("geotile: quadkey length %d out of range [%d, %d]", level, MinLevel, MaxLevel)
	}
	for i := level; i > 0; i-- {
		mask := int64(1) << uint(i-1)
		switch quadKey[level-i] {
		case '0':
		case '1':
			x |= mask
		case '2':
			y |= mask
		case '3':
			x |= mask
			y |= mask
		default:
			return 0, 0, 0, fmt.Errorf("geotile: invalid quadkey digit %q in %q", quadKey[level-i], quadKey)
		}
	}
	return x, y, level, nil
}

func clip(v, min, max float64) float64 {
	return math.Min(math.Max(v, min), max)
}
