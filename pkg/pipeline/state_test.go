package pipeline

import (
	"reflect"
	"testing"
)

func TestRunState_Observe(t *testing.T) {
	s := newRunState()
	s.observe(7, 5)
	s.observe(0, 2)
	s.observe(0, 0)
	if s.remaining != 0 {
		t.Errorf("remaining = %d, want 0", s.remaining)
	}

	s.observe(100, 1)
	if s.remaining != -1 {
		t.Errorf("later totals must be ignored, remaining = %d", s.remaining)
	}
}

func TestRunState_Duplicates(t *testing.T) {
	s := newRunState()
	s.track([]string{"a", "b"})
	s.track([]string{"b", "c", "b"})

	want := map[string]int{"b": 2}
	if got := s.duplicates(); !reflect.DeepEqual(got, want) {
		t.Errorf("duplicates() = %v, want %v", got, want)
	}
	if s.kept != 5 {
		t.Errorf("kept = %d, want 5", s.kept)
	}
	if got := sortedKeys(map[string]int{"z": 1, "a": 1}); !reflect.DeepEqual(got, []string{"a", "z"}) {
		t.Errorf("sortedKeys() = %v", got)
	}
}
