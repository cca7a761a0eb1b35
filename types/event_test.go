package types

import (
	"testing"
	"time"
)

func Test_CommandEventTime(t *testing.T) {
	e := CommandEvent{Timestamp: 1700000000.5}
	want := time.Unix(1700000000, 500000000).UTC()
	if !e.Time().Equal(want) {
		t.Fatalf("expected %v, got %v", want, e.Time())
	}
}

func Test_CommandEventIndex(t *testing.T) {
	e := CommandEvent{JobID: "test-job", Timestamp: 1700000000}
	if e.Index() != "hotshard-test-job-2023-11-14" {
		t.Fatal("unexpected index:", e.Index())
	}
}
