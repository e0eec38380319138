// Package domain defines the activity model and the pure transformations
// applied to it before advice generation.
package domain

import "time"

// ActivityTypeRun is the only activity type retained for advice generation.
const ActivityTypeRun = "Run"

// ActivityRecord is a raw activity as reported by the provider. Units are the
// provider's: meters, seconds and meters per second.
type ActivityRecord struct {
	ID                   int64
	Name                 string
	Type                 string
	Distance             float64
	MovingTime           int
	ElapsedTime          int
	TotalElevationGain   float64
	StartDate            time.Time
	AverageSpeed         float64
	MaxSpeed             float64
	AverageCadence       *float64
	AverageHeartrate     *float64
	MaxHeartrate         *float64
	WeightedAverageWatts *float64
	Calories             *float64
	SufferScore          *float64
	KudosCount           int
}

// NormalizedActivity is the unit-converted view of a run used in prompts.
type NormalizedActivity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	StartDate          time.Time `json:"start_date"`
	DistanceKm         float64   `json:"distance_km"`
	MovingTimeMin      float64   `json:"moving_time_min"`
	ElapsedTimeMin     float64   `json:"elapsed_time_min"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	AverageSpeedKmh    float64   `json:"average_speed_kmh"`
	KudosCount         int       `json:"kudos_count"`
	MaxSpeedKmh        float64   `json:"max_speed_kmh"`
	PaceMinPerKm       float64   `json:"pace_min_per_km"`
	SpeedDiffKmh       float64   `json:"speed_diff_kmh"`
	RestTimeMin        float64   `json:"rest_time_min"`
}

// SummaryStatistics aggregates normalized activities of one type.
type SummaryStatistics struct {
	Type               string  `json:"type"`
	TotalActivities    int     `json:"total_activities"`
	AvgDistanceKm      float64 `json:"avg_distance_km"`
	AvgMovingTimeMin   float64 `json:"avg_moving_time_min"`
	AvgPaceMinPerKm    float64 `json:"avg_pace_min_per_km"`
	TotalDistanceKm    float64 `json:"total_distance_km"`
	TotalMovingTimeMin float64 `json:"total_moving_time_min"`
}
