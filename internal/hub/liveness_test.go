package hub

import (
	"fmt"
	"sync"
	"testing"
)

func TestSweep_PingsLiveConnections(t *testing.T) {
	f := newFixture(t, Options{})
	c, _ := f.connect()

	if reaped := f.hub.Sweep(); reaped != 0 {
		t.Fatalf("first sweep reaped %d, want 0", reaped)
	}
	if len(c.ping) != 1 {
		t.Error("ping not requested on first sweep")
	}
	if c.alive.Load() {
		t.Error("alive flag not cleared by sweep")
	}
}

func TestSweep_ReapsSilentConnection(t *testing.T) {
	f := newFixture(t, Options{})
	responsive, _ := f.connect()
	silent, silentWire := f.connect()
	robot, _ := f.connect()

	f.hub.Sweep()
	responsive.pong()
	robot.pong()
	<-responsive.ping
	<-robot.ping

	if reaped := f.hub.Sweep(); reaped != 1 {
		t.Fatalf("second sweep reaped %d, want 1", reaped)
	}
	if !silentWire.isClosed() {
		t.Error("silent connection not terminated")
	}
	if n := f.hub.Count(); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
	if len(responsive.ping) != 1 {
		t.Error("responsive connection not pinged again")
	}

	f.send(robot, `{"type":"telemetry","robot_id":"r1","speed":1}`)
	if got := queued(responsive); len(got) != 1 {
		t.Errorf("responsive frames = %v, want 1", got)
	}
	if got := queued(silent); len(got) != 0 {
		t.Errorf("reaped connection got frames %v", got)
	}
}

func TestSweep_PongAnytimeKeepsAlive(t *testing.T) {
	f := newFixture(t, Options{})
	c, _ := f.connect()

	for i := 0; i < 5; i++ {
		if reaped := f.hub.Sweep(); reaped != 0 {
			t.Fatalf("sweep %d reaped %d, want 0", i, reaped)
		}
		c.pong()
	}
	if f.hub.Count() != 1 {
		t.Errorf("Count() = %d, want 1", f.hub.Count())
	}
}

func TestRegistry_ForEachSkipsClosing(t *testing.T) {
	f := newFixture(t, Options{})
	open, _ := f.connect()
	closing, _ := f.connect()
	closing.close()

	var visited []*Conn
	f.hub.conns.ForEach(nil, func(c *Conn) { visited = append(visited, c) })

	if len(visited) != 1 || visited[0] != open {
		t.Errorf("visited %d connections, want only the open one", len(visited))
	}
}

func TestRegistry_RemoveReportsPresence(t *testing.T) {
	r := NewRegistry()
	f := newFixture(t, Options{})
	c, _ := f.connect()

	r.Add(c)
	if !r.Remove(c) {
		t.Error("first Remove() = false, want true")
	}
	if r.Remove(c) {
		t.Error("second Remove() = true, want false")
	}
}

func TestRegistry_ConcurrentFanOut(t *testing.T) {
	f := newFixture(t, Options{})
	sender, _ := f.connect()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c, _ := f.connect()
			f.hub.drop(c)
		}()
		go func(i int) {
			defer wg.Done()
			f.send(sender, fmt.Sprintf(`{"type":"telemetry","robot_id":"r%d","speed":1}`, i%3))
			_ = f.hub.Count()
		}(i)
	}
	wg.Wait()

	if n := f.hub.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	if n := f.store.Len(); n != 3 {
		t.Errorf("store Len = %d, want 3", n)
	}
}
