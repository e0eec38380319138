package domain

const (
	metersPerKm     = 1000.0
	secondsPerMin   = 60.0
	msToKmh         = 3.6
	negativeTimeMsg = "moving_time and elapsed_time must be >= 0"
)

// Normalize converts a run into prompt units. Distance must be positive so
// pace is defined.
func Normalize(rec ActivityRecord) (NormalizedActivity, error) {
	if rec.Distance <= 0 {
		return NormalizedActivity{}, &InvalidRecordError{ActivityID: rec.ID, Reason: "distance must be > 0 to compute pace"}
	}
	if rec.MovingTime < 0 || rec.ElapsedTime < 0 {
		return NormalizedActivity{}, &InvalidRecordError{ActivityID: rec.ID, Reason: negativeTimeMsg}
	}

	distanceKm := rec.Distance / metersPerKm
	movingMin := float64(rec.MovingTime) / secondsPerMin
	elapsedMin := float64(rec.ElapsedTime) / secondsPerMin
	avgKmh := rec.AverageSpeed * msToKmh
	maxKmh := rec.MaxSpeed * msToKmh

	return NormalizedActivity{
		ID:                 rec.ID,
		Name:               rec.Name,
		Type:               rec.Type,
		StartDate:          rec.StartDate.UTC(),
		DistanceKm:         distanceKm,
		MovingTimeMin:      movingMin,
		ElapsedTimeMin:     elapsedMin,
		TotalElevationGain: rec.TotalElevationGain,
		AverageSpeedKmh:    avgKmh,
		KudosCount:         rec.KudosCount,
		MaxSpeedKmh:        maxKmh,
		PaceMinPerKm:       movingMin / distanceKm,
		SpeedDiffKmh:       maxKmh - avgKmh,
		RestTimeMin:        elapsedMin - movingMin,
	}, nil
}

// Aggregate filters records to runs, normalizes them in input order and
// summarises them per type. A single invalid run fails the whole call.
func Aggregate(records []ActivityRecord) ([]NormalizedActivity, []SummaryStatistics, error) {
	normalized := make([]NormalizedActivity, 0, len(records))
	for _, rec := range records {
		if rec.Type != ActivityTypeRun {
			continue
		}
		n, err := Normalize(rec)
		if err != nil {
			return nil, nil, err
		}
		normalized = append(normalized, n)
	}
	return normalized, Summarize(normalized), nil
}

// Summarize groups activities by type in first-seen order. With no input it
// returns one zero-valued run row.
func Summarize(activities []NormalizedActivity) []SummaryStatistics {
	if len(activities) == 0 {
		return []SummaryStatistics{{Type: ActivityTypeRun}}
	}

	order := make([]string, 0, 1)
	groups := make(map[string]*summaryAccumulator)
	for _, a := range activities {
		acc, ok := groups[a.Type]
		if !ok {
			acc = &summaryAccumulator{}
			groups[a.Type] = acc
			order = append(order, a.Type)
		}
		acc.add(a)
	}

	out := make([]SummaryStatistics, 0, len(order))
	for _, activityType := range order {
		out = append(out, groups[activityType].result(activityType))
	}
	return out
}

type summaryAccumulator struct {
	count        int
	distanceKm   float64
	movingMin    float64
	paceMinPerKm float64
}

func (a *summaryAccumulator) add(n NormalizedActivity) {
	a.count++
	a.distanceKm += n.DistanceKm
	a.movingMin += n.MovingTimeMin
	a.paceMinPerKm += n.PaceMinPerKm
}

func (a *summaryAccumulator) result(activityType string) SummaryStatistics {
	s := SummaryStatistics{
		Type:               activityType,
		TotalActivities:    a.count,
		TotalDistanceKm:    a.distanceKm,
		TotalMovingTimeMin: a.movingMin,
	}
	if a.count > 0 {
		n := float64(a.count)
		s.AvgDistanceKm = a.distanceKm / n
		s.AvgMovingTimeMin = a.movingMin / n
		s.AvgPaceMinPerKm = a.paceMinPerKm / n
	}
	return s
}
