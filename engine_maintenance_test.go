package volcanion

import (
	"testing"
	"time"
)

func TestRunMaintenance(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "correct horse")
	h.login(t, "x@example.com", "correct horse")
	if err := h.engine.RequestPasswordReset(h.ctx, "x@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}

	g := h.engine.Graph()
	role, _ := g.CreateRole(h.ctx, "viewer", "")
	perm, _ := g.CreatePermission(h.ctx, "", "report", "read", "")
	if _, _, err := g.AssignEdge(h.ctx, role.ID, perm.ID); err != nil {
		t.Fatalf("assign edge: %v", err)
	}
	expires := h.clock.Now().Add(time.Hour)
	if _, err := g.GrantRole(h.ctx, "acct-1", role.ID, "admin", &expires); err != nil {
		t.Fatalf("grant role: %v", err)
	}

	report, err := h.engine.RunMaintenance(h.ctx)
	if err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if report != (MaintenanceReport{}) {
		t.Fatalf("nothing should be purged yet: %+v", report)
	}

	h.clock.Advance(8 * 24 * time.Hour)
	report, err = h.engine.RunMaintenance(h.ctx)
	if err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	want := MaintenanceReport{RefreshTokensPurged: 1, GrantsExpired: 1, OneTimeTokensPurged: 1}
	if report != want {
		t.Fatalf("got %+v want %+v", report, want)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricGrantsExpired]; got != 1 {
		t.Fatalf("expected grants metric 1, got %d", got)
	}
}
