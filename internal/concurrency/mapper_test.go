package concurrency

import (
	"errors"
	"testing"
)

func TestMapPreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	results, err := Map(items, 3, func(i int) (int, error) {
		return i * i, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range results {
		if v != items[i]*items[i] {
			t.Fatalf("index %d: got %d", i, v)
		}
	}
}

func TestMapSettledRunsEveryItemAndKeepsPerItemErrors(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var calls int
	settled := MapSettled(items, 2, func(i int) (int, error) {
		calls++
		if i == 3 {
			return 0, errors.New("boom")
		}
		return i, nil
	})

	if calls != len(items) {
		t.Fatalf("expected every item to be processed, got %d calls", calls)
	}
	if settled[2].Err == nil {
		t.Fatal("expected item 3 (index 2) to have failed")
	}
	for i, s := range settled {
		if i != 2 && s.Err != nil {
			t.Fatalf("index %d unexpectedly failed: %v", i, s.Err)
		}
	}
}

func TestMapConcurrencyZeroDefaultsToOne(t *testing.T) {
	results, err := Map([]int{1, 2, 3}, 0, func(i int) (int, error) { return i, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
}
