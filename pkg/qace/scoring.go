package qace

// norm maps x into [0,1] given a saturation bound: x <= 0 saturates to 0,
// x >= bound saturates to 1.
func norm(x, bound int64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= bound {
		return 1
	}
	return float64(x) / float64(bound)
}

// score computes score(p) per spec: the weighted sum of normalized
// telemetry terms plus the route's qos/freshness bonuses, minus its hop-count
// penalty. stickiness is only non-zero for the current primary.
func score(weights Weights, bounds Bounds, metrics Metrics, route Route, stickiness float64) float64 {
	s := weights.Latency*norm(metrics.LatencyMs, bounds.LatencyMaxMs) +
		weights.Loss*norm(metrics.LossBps, bounds.LossMaxBps) +
		weights.Threat*norm(metrics.ThreatScore, bounds.ThreatMaxScore) +
		weights.Qos*float64(route.QosBias()) +
		weights.Fresh*float64(route.Freshness()) -
		weights.Hops*float64(route.HopCount())

	s += weights.Stick * stickiness
	return s
}

// stickinessAt returns the linear decay of stickiness over ttlEpochs,
// starting at 1 at epochsSinceReroute == 0 and reaching 0 at or after
// ttlEpochs.
func stickinessAt(epochsSinceReroute, ttlEpochs uint64) float64 {
	if 0 == ttlEpochs || epochsSinceReroute >= ttlEpochs {
		return 0
	}
	return 1 - float64(epochsSinceReroute)/float64(ttlEpochs)
}

// bestAlternate returns the highest-scoring viable alternate and its score.
// It returns found=false if no alternate is viable.
func bestAlternate(weights Weights, bounds Bounds, metrics Metrics, alternates []Route) (Route, float64, bool) {
	var best Route
	bestScore := 0.0
	found := false
	for _, alt := range alternates {
		if !alt.IsViable() {
			continue
		}
		s := score(weights, bounds, metrics, alt, 0)
		if !found || s > bestScore {
			best, bestScore, found = alt, s, true
		}
	}
	return best, bestScore, found
}
