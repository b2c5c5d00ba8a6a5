package triage

import (
	"testing"

	"github.com/linnemanlabs/argus/internal/alert"
)

func TestRoute_Categories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		alert     *alert.Alert
		wantRoute Route
	}{
		{
			name: "sql injection routes to web attack",
			alert: &alert.Alert{
				AttackType: "SQL injection attempt",
				Payload:    "id=1 UNION SELECT username, password FROM users",
			},
			wantRoute: RouteWebAttack,
		},
		{
			name: "xss routes to web attack",
			alert: &alert.Alert{
				AttackType: "suspicious request",
				Payload:    `<script>alert(document.cookie)</script>`,
			},
			wantRoute: RouteWebAttack,
		},
		{
			name: "cve exploit routes to vulnerability",
			alert: &alert.Alert{
				AttackType: "exploit attempt",
				Payload:    "CVE-2021-44228 jndi shellcode delivery",
			},
			wantRoute: RouteVulnerability,
		},
		{
			name: "botnet traffic routes to illegal connection",
			alert: &alert.Alert{
				AttackType: "anomalous traffic",
				Payload:    "periodic beacon to known botnet sinkhole over tor",
			},
			wantRoute: RouteIllegalConnection,
		},
		{
			name: "raw log contributes to routing",
			alert: &alert.Alert{
				AttackType: "alert",
				Payload:    "nothing here",
				AdditionalInfo: map[string]string{
					"raw_log": "observed c2 communication with ddos controller",
				},
			},
			wantRoute: RouteIllegalConnection,
		},
	}

	r := NewRouter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := r.Route(tt.alert)
			if got.SelectedRoute != tt.wantRoute {
				t.Errorf("SelectedRoute = %q, want %q", got.SelectedRoute, tt.wantRoute)
			}
			if got.Confidence < 0 || got.Confidence > 1 {
				t.Errorf("Confidence = %v, want within [0, 1]", got.Confidence)
			}
		})
	}
}

func TestRoute_NoMatchDefaultsToFirstCategory(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)
	got := r.Route(&alert.Alert{
		AttackType: "anomaly",
		Payload:    "ordinary benign log line with nothing of note",
	})

	if got.SelectedRoute != RouteWebAttack {
		t.Errorf("SelectedRoute = %q, want %q", got.SelectedRoute, RouteWebAttack)
	}
	if got.Confidence != uncertainConf {
		t.Errorf("Confidence = %v, want %v", got.Confidence, uncertainConf)
	}
}

func TestRoute_WeakMatchLowConfidence(t *testing.T) {
	t.Parallel()

	// A single pattern hit with no keyword hits scores 0.4, below the
	// 0.5 uncertainty bound, so confidence pins to the floor.
	r := NewRouter(nil)
	got := r.Route(&alert.Alert{
		AttackType: "anomaly",
		Payload:    "zombie process observed",
	})

	if got.SelectedRoute != RouteIllegalConnection {
		t.Errorf("SelectedRoute = %q, want %q", got.SelectedRoute, RouteIllegalConnection)
	}
	if got.Confidence != uncertainConf {
		t.Errorf("Confidence = %v, want %v", got.Confidence, uncertainConf)
	}
}

func TestRoute_Deterministic(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)
	al := &alert.Alert{
		AttackType: "web attack",
		Payload:    "union select from admin where 1=1",
	}

	first := r.Route(al)
	for i := 0; i < 10; i++ {
		got := r.Route(al)
		if got.SelectedRoute != first.SelectedRoute || got.Confidence != first.Confidence {
			t.Fatalf("run %d: got (%q, %v), want (%q, %v)",
				i, got.SelectedRoute, got.Confidence, first.SelectedRoute, first.Confidence)
		}
	}
}

func TestRoute_ConfidenceScaling(t *testing.T) {
	t.Parallel()

	// Heavy keyword + pattern overlap should push the score past the
	// strong-match ceiling and cap confidence at 1.0.
	r := NewRouter(nil)
	got := r.Route(&alert.Alert{
		AttackType: "sql injection xss webshell",
		Payload:    "union select script inject upload traversal <script>alert(1) ../../etc/passwd",
	})

	if got.SelectedRoute != RouteWebAttack {
		t.Errorf("SelectedRoute = %q, want %q", got.SelectedRoute, RouteWebAttack)
	}
	if got.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", got.Confidence)
	}
}

func TestRoute_CaseInsensitive(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)
	lower := r.Route(&alert.Alert{AttackType: "sql injection", Payload: "union select"})
	upper := r.Route(&alert.Alert{AttackType: "SQL INJECTION", Payload: "UNION SELECT"})

	if lower.SelectedRoute != upper.SelectedRoute {
		t.Errorf("routes differ by case: %q vs %q", lower.SelectedRoute, upper.SelectedRoute)
	}
	if lower.Confidence != upper.Confidence {
		t.Errorf("confidence differs by case: %v vs %v", lower.Confidence, upper.Confidence)
	}
}

func TestThreatLevelForScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  string
	}{
		{9.5, ThreatHigh},
		{7.0, ThreatHigh},
		{6.9, ThreatMedium},
		{4.0, ThreatMedium},
		{3.9, ThreatLow},
		{0, ThreatLow},
	}
	for _, tt := range tests {
		if got := ThreatLevelForScore(tt.score); got != tt.want {
			t.Errorf("ThreatLevelForScore(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
