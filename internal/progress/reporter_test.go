package progress

import (
	"sync"
	"testing"
)

// collector records every delivered event in order.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) listen(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestReporterDeliversInOrder(t *testing.T) {
	var c collector
	r := NewReporter("job-1", c.listen)

	r.Emit(5, "loading")
	r.Emit(50, "working")
	r.Finish(100, "done")
	r.Close()

	events := c.all()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	wantPct := []float64{5, 50, 100}
	for i, ev := range events {
		if ev.JobID != "job-1" {
			t.Errorf("events[%d].JobID = %q", i, ev.JobID)
		}
		if ev.Percent != wantPct[i] {
			t.Errorf("events[%d].Percent = %v, want %v", i, ev.Percent, wantPct[i])
		}
	}
	if events[0].Done || events[1].Done || !events[2].Done {
		t.Error("Done flag set on wrong events")
	}
}

func TestReporterMonotonicClamp(t *testing.T) {
	var c collector
	r := NewReporter("job-1", c.listen)

	r.Emit(40, "a")
	r.Emit(20, "b")
	r.Emit(60, "c")
	r.Close()

	events := c.all()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[1].Percent != 40 {
		t.Errorf("regression not clamped: got %v, want 40", events[1].Percent)
	}
	if events[2].Percent != 60 {
		t.Errorf("forward progress lost: got %v, want 60", events[2].Percent)
	}
}

func TestReporterReset(t *testing.T) {
	var c collector
	r := NewReporter("job-1", c.listen)

	r.Emit(80, "almost")
	r.Reset("restarting")
	r.Emit(10, "again")
	r.Close()

	events := c.all()
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[1].Percent != 0 {
		t.Errorf("reset event percent = %v, want 0", events[1].Percent)
	}
	if events[2].Percent != 10 {
		t.Errorf("post-reset percent = %v, want 10", events[2].Percent)
	}
}

func TestReporterRange(t *testing.T) {
	var c collector
	r := NewReporter("job-1", c.listen)

	r.Range(0, 100, 15, 80, "start")
	r.Range(50, 100, 15, 80, "half")
	r.Range(100, 100, 15, 80, "end")
	r.Range(150, 100, 15, 80, "overshoot")
	r.Close()

	events := c.all()
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	wantPct := []float64{15, 47.5, 80, 80}
	for i, ev := range events {
		if ev.Percent != wantPct[i] {
			t.Errorf("events[%d].Percent = %v, want %v", i, ev.Percent, wantPct[i])
		}
	}
}

func TestReporterClampsOutOfBounds(t *testing.T) {
	var c collector
	r := NewReporter("job-1", c.listen)

	r.Emit(-10, "low")
	r.Emit(250, "high")
	r.Close()

	events := c.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Percent != 0 {
		t.Errorf("low percent = %v, want 0", events[0].Percent)
	}
	if events[1].Percent != 100 {
		t.Errorf("high percent = %v, want 100", events[1].Percent)
	}
}

func TestReporterCloseDrainsEverything(t *testing.T) {
	var c collector
	r := NewReporter("job-1", c.listen)

	const total = 500
	for i := 0; i < total; i++ {
		r.Range(i, total-1, 0, 100, "step")
	}
	r.Close()

	events := c.all()
	if len(events) != total {
		t.Fatalf("got %d events, want %d: Close must drain the queue", len(events), total)
	}
	if events[total-1].Percent != 100 {
		t.Errorf("final percent = %v, want 100", events[total-1].Percent)
	}
}

func TestReporterIgnoresEmitAfterClose(t *testing.T) {
	var c collector
	r := NewReporter("job-1", c.listen)
	r.Emit(10, "before")
	r.Close()
	r.Emit(90, "after")
	r.Close()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}
