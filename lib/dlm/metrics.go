package dlm

import (
	gometrics "github.com/rcrowley/go-metrics"
)

// metric names, prefixed with "dlm."
const (
	MetricAcquire       = "dlm.acquire"
	MetricAcquireFailed = "dlm.acquire.failed"
	MetricRelease       = "dlm.release"
	MetricReleaseFailed = "dlm.release.failed"
	MetricBastDelivered = "dlm.bast.delivered"
	MetricBastDropped   = "dlm.bast.dropped"
	MetricCleanupFailed = "dlm.cleanup.failed"
)

// lockspaceMetrics holds the client side instruments of one lockspace.
type lockspaceMetrics struct {
	acquire       gometrics.Timer
	acquireFailed gometrics.Counter
	release       gometrics.Timer
	releaseFailed gometrics.Counter
	bastDelivered gometrics.Counter
	bastDropped   gometrics.Counter
	cleanupFailed gometrics.Counter
}

func newLockspaceMetrics(r gometrics.Registry) *lockspaceMetrics {
	return &lockspaceMetrics{
		acquire:       gometrics.GetOrRegisterTimer(MetricAcquire, r),
		acquireFailed: gometrics.GetOrRegisterCounter(MetricAcquireFailed, r),
		release:       gometrics.GetOrRegisterTimer(MetricRelease, r),
		releaseFailed: gometrics.GetOrRegisterCounter(MetricReleaseFailed, r),
		bastDelivered: gometrics.GetOrRegisterCounter(MetricBastDelivered, r),
		bastDropped:   gometrics.GetOrRegisterCounter(MetricBastDropped, r),
		cleanupFailed: gometrics.GetOrRegisterCounter(MetricCleanupFailed, r),
	}
}
