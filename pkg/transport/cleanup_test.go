package transport

import (
	"errors"
	"testing"

	"github.com/dd0wney/cluso-filestore/pkg/logging"
)

type orderCloser struct {
	name  string
	order *[]string
	err   error
}

func (c *orderCloser) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestResourceCleanup_ReverseOrder(t *testing.T) {
	var order []string
	cleanup := NewResourceCleanup(logging.NewNopLogger())
	cleanup.Add(&orderCloser{name: "pull", order: &order}, "pull")
	cleanup.Add(&orderCloser{name: "rep", order: &order}, "rep")
	cleanup.Add(&orderCloser{name: "push", order: &order}, "push")

	cleanup.Cleanup()

	want := []string{"push", "rep", "pull"}
	if len(order) != len(want) {
		t.Fatalf("closed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("close[%d] = %s, want %s", i, order[i], want[i])
		}
	}
	if cleanup.Len() != 0 {
		t.Errorf("Expected 0 resources after cleanup, got %d", cleanup.Len())
	}

	cleanup.Cleanup()
	if len(order) != 3 {
		t.Error("second Cleanup should not close again")
	}
}

func TestResourceCleanup_Clear(t *testing.T) {
	var order []string
	cleanup := NewResourceCleanup(nil)
	cleanup.Add(&orderCloser{name: "a", order: &order}, "a")
	cleanup.Clear()
	cleanup.Cleanup()

	if len(order) != 0 {
		t.Errorf("Clear should prevent closing, closed %v", order)
	}
}

func TestResourceCleanup_CloseAllReturnsFirstError(t *testing.T) {
	var order []string
	errFirst := errors.New("first")
	errSecond := errors.New("second")

	cleanup := NewResourceCleanup(logging.NewNopLogger())
	cleanup.Add(&orderCloser{name: "a", order: &order, err: errSecond}, "a")
	cleanup.Add(nil, "nil closer")
	cleanup.Add(&orderCloser{name: "b", order: &order, err: errFirst}, "b")

	err := cleanup.CloseAll()
	if !errors.Is(err, errFirst) {
		t.Errorf("CloseAll() = %v, want %v", err, errFirst)
	}
	if len(order) != 2 {
		t.Errorf("all closers should run, got %v", order)
	}
}
