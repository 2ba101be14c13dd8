package server

import (
	"reflect"
	"sync"
	"testing"
)

func TestAvailabilityBasics(t *testing.T) {
	a := NewAvailability([]string{"beta", "alpha"})

	if !a.Has("alpha") || !a.Has("beta") {
		t.Error("initial names missing")
	}
	if a.Has("gamma") {
		t.Error("gamma should not be present")
	}

	a.Add("gamma")
	a.Remove("beta")

	want := []string{"alpha", "gamma"}
	if got := a.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
	if a.Len() != 2 {
		t.Errorf("Len() = %d", a.Len())
	}
}

func TestAvailabilityReplace(t *testing.T) {
	a := NewAvailability([]string{"old"})
	a.Replace([]string{"new1", "new2"})

	if a.Has("old") {
		t.Error("old name should be gone after Replace")
	}
	if !a.Has("new1") || !a.Has("new2") {
		t.Error("new names missing after Replace")
	}
}

func TestAvailabilityConcurrentAccess(t *testing.T) {
	a := NewAvailability(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.Add("pkg")
			a.Remove("pkg")
		}()
		go func() {
			defer wg.Done()
			a.Has("pkg")
			a.List()
		}()
	}
	wg.Wait()
}
