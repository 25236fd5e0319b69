package p2p

import (
	"context"
	"testing"
	"time"
)

func TestTwoNodes_RequestTimeslot(t *testing.T) {
	nodeA := startTestNode(t)
	nodeB := startTestNode(t)
	connectNodes(t, nodeA, nodeB)

	syncerA := NewSyncer(nodeA)
	syncerA.RegisterTimeslotHandler(func() (uint64, string) {
		return 7, "deadbeef"
	})

	syncerB := NewSyncer(nodeB)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := syncerB.RequestTimeslot(ctx, nodeA.host.ID())
	if err != nil {
		t.Fatalf("RequestTimeslot: %v", err)
	}
	if resp.Timeslot != 7 || resp.HeadID != "deadbeef" {
		t.Errorf("unexpected response: %+v", resp)
	}
}
