package volcanion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// RunMaintenance purges expired refresh tokens, deactivates expired grants
// and deletes spent single-use tokens. Each step runs even if an earlier
// one fails; the joined error reports every failure.
func (e *Engine) RunMaintenance(ctx context.Context) (MaintenanceReport, error) {
	if !e.ready() {
		return MaintenanceReport{}, ErrEngineNotReady
	}

	var report MaintenanceReport
	var errs []error

	step := func(name string, fn func(context.Context) (int64, error)) int64 {
		ctx, cancel := e.bounded(ctx)
		defer cancel()
		n, err := fn(ctx)
		if err != nil {
			e.logger.Warn("maintenance step failed", "step", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return n
	}

	report.RefreshTokensPurged = step("purge_refresh_tokens", e.tokens.PurgeExpired)
	report.GrantsExpired = step("cleanup_expired_grants", e.graph.CleanupExpiredGrants)
	report.OneTimeTokensPurged = step("purge_one_time_tokens", e.tokens.PurgeSpentOneTime)

	e.metrics.Add(MetricRefreshTokensPurged, uint64(report.RefreshTokensPurged))
	e.metrics.Add(MetricGrantsExpired, uint64(report.GrantsExpired))
	e.metrics.Add(MetricOneTimeTokensPurged, uint64(report.OneTimeTokensPurged))

	err := errors.Join(errs...)
	e.emitAudit(ctx, auditEventMaintenance, err == nil, "", "", err, func() map[string]string {
		return map[string]string{
			"refresh_tokens_purged":  strconv.FormatInt(report.RefreshTokensPurged, 10),
			"grants_expired":         strconv.FormatInt(report.GrantsExpired, 10),
			"one_time_tokens_purged": strconv.FormatInt(report.OneTimeTokensPurged, 10),
		}
	})
	return report, err
}
