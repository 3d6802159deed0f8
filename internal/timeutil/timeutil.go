package timeutil

import (
	"fmt"
	"sort"
	"time"

	"github.com/mlflowstone/mlflowstone/internal/models"
	"github.com/mlflowstone/mlflowstone/tracking"
)

// AlignTimestamp aligns timestamp to the specified resolution and alignment
func AlignTimestamp(t time.Time, resolution string, alignment string) (time.Time, error) {
	var duration time.Duration

	switch resolution {
	case "1m":
		duration = time.Minute
	case "5m":
		duration = 5 * time.Minute
	case "1h":
		duration = time.Hour
	default:
		return t, fmt.Errorf("unsupported resolution: %s", resolution)
	}

	aligned := t.Truncate(duration)

	switch alignment {
	case "floor":
		return aligned, nil
	case "ceil":
		if t.After(aligned) {
			return aligned.Add(duration), nil
		}
		return aligned, nil
	case "round":
		half := duration / 2
		if t.Sub(aligned) >= half {
			return aligned.Add(duration), nil
		}
		return aligned, nil
	default:
		return t, fmt.Errorf("unsupported alignment: %s", alignment)
	}
}

// ProcessMetrics flattens metric file points into individual tracking
// metrics, aligning timestamps and deriving steps per the time config.
func ProcessMetrics(points []models.MetricPoint, config models.TimeConfig, baseTime *time.Time) ([]tracking.MetricPoint, error) {
	var result []tracking.MetricPoint
	var base time.Time

	if baseTime != nil {
		base = *baseTime
	} else if len(points) > 0 && points[0].Timestamp != nil {
		base = *points[0].Timestamp
	} else {
		base = time.Now()
	}

	for seq, point := range points {
		var timestamp time.Time
		var step int64

		if point.Timestamp != nil {
			var err error
			timestamp, err = AlignTimestamp(*point.Timestamp, config.Resolution, config.Alignment)
			if err != nil {
				return nil, err
			}
		} else {
			timestamp = time.Now()
		}

		if point.Step != nil {
			step = *point.Step
		} else {
			switch config.StepMode {
			case "timestamp":
				step = int64(timestamp.Sub(base).Minutes())
			case "sequence":
				step = int64(seq)
			case "auto":
				if point.Timestamp != nil {
					step = int64(timestamp.Sub(base).Minutes())
				} else {
					step = int64(seq)
				}
			default:
				return nil, fmt.Errorf("unsupported step mode: %s", config.StepMode)
			}
		}

		// Deterministic metric order within a point
		keys := make([]string, 0, len(point.Values))
		for key := range point.Values {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			result = append(result, tracking.MetricPoint{
				Key:       key,
				Value:     point.Values[key],
				Timestamp: timestamp,
				Step:      step,
			})
		}
	}

	return result, nil
}
