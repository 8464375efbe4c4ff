package metrics

// SyncRecord records one record processed by sync.
func SyncRecord(chain, status string) {
	if !enabled {
		return
	}
	syncRecordTotal.WithLabelValues(chain, status).Inc()
}

// BroadcastFile records one broadcast run file read by sync.
func BroadcastFile(status string) {
	if !enabled {
		return
	}
	broadcastFileTotal.WithLabelValues(status).Inc()
}

// Verification records the outcome of one verification strategy.
func Verification(strategy, result string) {
	if !enabled {
		return
	}
	verificationTotal.WithLabelValues(strategy, result).Inc()
}

// SweepOutcome records one deployment handled by the post-deploy sweep.
func SweepOutcome(status string) {
	if !enabled {
		return
	}
	sweepOutcomeTotal.WithLabelValues(status).Inc()
}

// Reconstruction records a project reconstruction.
func Reconstruction(result string) {
	if !enabled {
		return
	}
	reconstructTotal.WithLabelValues(result).Inc()
}

// Drift records a drift comparison.
func Drift(result string) {
	if !enabled {
		return
	}
	driftTotal.WithLabelValues(result).Inc()
}

// ResolverLookup records a resolver lookup.
func ResolverLookup(operation, status string) {
	if !enabled {
		return
	}
	resolverLookupTotal.WithLabelValues(operation, status).Inc()
}
