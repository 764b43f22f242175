package server

import (
	"sync"
	"testing"
)

func TestStatusTracker_AllSortedCopies(t *testing.T) {
	st := newStatusTracker()
	st.Set(&ComponentStatus{Name: "store", Status: statusOK})
	st.Set(&ComponentStatus{Name: "influxdb", Status: statusDisabled})
	st.Set(&ComponentStatus{Name: "mqtt", Status: statusError, ConsecFails: 3})

	all := st.All()
	want := []string{"influxdb", "mqtt", "store"}
	if len(all) != len(want) {
		t.Fatalf("All() = %d entries, want %d", len(all), len(want))
	}
	for i, name := range want {
		if all[i].Name != name {
			t.Errorf("All()[%d] = %s, want %s", i, all[i].Name, name)
		}
	}

	all[1].Status = statusOK
	if st.Get("mqtt").Status != statusError {
		t.Error("mutating All() result changed the tracker")
	}
	if st.Get("nope") != nil {
		t.Error("Get() of an unknown component should be nil")
	}
}

func TestActivityLog_RingBuffer(t *testing.T) {
	al := newActivityLog(3)
	for i := 1; i <= 5; i++ {
		al.Logf("test", "info", "event %d", i)
	}

	if al.Seq() != 5 {
		t.Errorf("Seq() = %d, want 5", al.Seq())
	}

	got := al.Recent(10)
	want := []string{"event 5", "event 4", "event 3"}
	if len(got) != len(want) {
		t.Fatalf("Recent() = %d events, want %d", len(got), len(want))
	}
	for i, msg := range want {
		if got[i].Message != msg {
			t.Errorf("Recent()[%d] = %q, want %q", i, got[i].Message, msg)
		}
	}

	if n := len(al.Recent(2)); n != 2 {
		t.Errorf("Recent(2) = %d events", n)
	}
}

func TestActivityLog_NonPositiveCapacity(t *testing.T) {
	al := newActivityLog(0)
	al.Logf("test", "info", "a")
	al.Logf("test", "info", "b")

	got := al.Recent(5)
	if len(got) != 1 || got[0].Message != "b" {
		t.Errorf("Recent() = %+v, want only b", got)
	}
}

func TestActivityLog_Concurrent(t *testing.T) {
	al := newActivityLog(50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				al.Logf("worker", "info", "worker %d event %d", i, j)
				al.Recent(5)
			}
		}()
	}
	wg.Wait()

	if al.Seq() != 200 {
		t.Errorf("Seq() = %d, want 200", al.Seq())
	}
	if n := len(al.Recent(100)); n != 50 {
		t.Errorf("Recent() = %d events, want 50 (capacity)", n)
	}
}
