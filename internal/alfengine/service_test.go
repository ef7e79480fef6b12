package alfengine

import (
	"context"
	"testing"

	"laguerre-systemv1/internal/laguerre"
)

func TestStartupCatchUp_ColdStartBackfillsEverything(t *testing.T) {
	if !fullBackfillNeeded(nil) {
		t.Fatal("cold start must replay the full stream history")
	}
}

func TestStartupCatchUp_SnapshotSkipsFullBackfill(t *testing.T) {
	snap := &laguerre.EngineSnapshot{StreamID: "1709500000000-0", Version: 1}
	if fullBackfillNeeded(snap) {
		t.Fatal("a restored engine must not re-replay pre-snapshot bars")
	}
}

func TestReplayDelta_NoResumePointIsNoop(t *testing.T) {
	// A snapshot without a stream ID carries state but no resume point.
	// replayDelta must bail out before touching any connection.
	svc := &Service{restoredSnap: &laguerre.EngineSnapshot{Version: 1}}
	svc.replayDelta(context.Background())

	svc = &Service{}
	svc.replayDelta(context.Background())
}
