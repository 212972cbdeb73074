package transport

import (
	"math"
	"testing"
	"time"
)

func TestBandwidthRegulatorEnforcesRate(t *testing.T) {
	current := time.Unix(0, 0)
	clock := func() time.Time { return current }
	regulator := NewBandwidthRegulator(100, clock)

	if !regulator.Allow("peer-1", 60) {
		t.Fatalf("expected initial burst to be allowed")
	}
	if regulator.Allow("peer-1", 50) {
		t.Fatalf("expected payload to be throttled while tokens depleted")
	}

	current = current.Add(500 * time.Millisecond)
	if !regulator.Allow("peer-1", 50) {
		t.Fatalf("expected payload to pass after partial refill")
	}

	current = current.Add(time.Second)
	usage := regulator.SnapshotUsage()
	sample, ok := usage["peer-1"]
	if !ok {
		t.Fatalf("missing usage sample for peer")
	}
	if sample.DeniedDeliveries != 1 {
		t.Fatalf("expected one denied delivery, got %d", sample.DeniedDeliveries)
	}
	if sample.AvailableBytes <= 0 {
		t.Fatalf("expected available bytes to be positive, got %f", sample.AvailableBytes)
	}
	if sample.ObservedSeconds <= 0 {
		t.Fatalf("expected observed window to be positive")
	}
	if sample.BytesPerSecond <= 0 {
		t.Fatalf("expected non-zero throughput sample")
	}
	expectedRate := float64(110) / sample.ObservedSeconds
	if math.Abs(sample.BytesPerSecond-expectedRate) > 1e-6 {
		t.Fatalf("unexpected throughput: got %.6f want %.6f", sample.BytesPerSecond, expectedRate)
	}

	regulator.Forget("peer-1")
	current = current.Add(time.Second)
	usage = regulator.SnapshotUsage()
	if len(usage) != 0 {
		t.Fatalf("expected usage map cleared after forget, got %d entries", len(usage))
	}
}

func TestBandwidthRegulatorDeniesOversizedBurstUntilRefilled(t *testing.T) {
	current := time.Unix(0, 0)
	clock := func() time.Time { return current }
	regulator := NewBandwidthRegulator(10, clock)

	if regulator.Allow("peer-2", 11) {
		t.Fatalf("expected a frame larger than capacity to be denied")
	}
	current = current.Add(2 * time.Second)
	if !regulator.Allow("peer-2", 11) {
		t.Fatalf("expected the frame to be allowed once enough tokens accrued")
	}
}

// wireFrame builds a minimal replication-shaped frame: a 4-byte length
// header (unused by AllowFrame) followed by a Kind tag at index 4.
func wireFrame(kind byte, size int) []byte {
	frame := make([]byte, size)
	if size > 4 {
		frame[4] = kind
	}
	return frame
}

func TestBandwidthRegulatorReservesLaneForControlFrames(t *testing.T) {
	current := time.Unix(0, 0)
	clock := func() time.Time { return current }
	// capacity 100, reserve 25.
	regulator := NewBandwidthRegulator(100, clock)

	// Drain the shared budget with a SyncResponse-sized burst (kind 4).
	if !regulator.AllowFrame("peer-3", wireFrame(4, 100)) {
		t.Fatalf("expected the initial full-budget SyncResponse burst to be allowed")
	}
	if regulator.AllowFrame("peer-3", wireFrame(4, 1)) {
		t.Fatalf("expected a further SyncResponse byte to be denied once the shared budget is drained")
	}

	// A MoveAck (kind 2) still gets through via the untouched reserve lane.
	if !regulator.AllowFrame("peer-3", wireFrame(2, 10)) {
		t.Fatalf("expected a small control frame to draw from the reserve lane despite a drained shared budget")
	}

	// The reserve lane is itself bounded: a control frame bigger than it
	// falls back to the (still drained) shared budget and is denied.
	if regulator.AllowFrame("peer-3", wireFrame(2, 30)) {
		t.Fatalf("expected a control frame larger than the reserve lane to be denied")
	}

	usage := regulator.SnapshotUsage()
	sample, ok := usage["peer-3"]
	if !ok {
		t.Fatalf("missing usage sample for peer")
	}
	if sample.ReserveBytes <= 0 {
		t.Fatalf("expected remaining reserve bytes to be positive, got %f", sample.ReserveBytes)
	}
}
