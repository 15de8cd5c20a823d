package eval

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/haasonsaas/ragbench/pkg/models"
)

func TestFailureModes(t *testing.T) {
	traces := []models.QueryTrace{
		{ID: "1"},
		{ID: "2", Error: "TimeoutError: task 1 exceeded 30s"},
		{ID: "3", Error: "TimeoutError: task 2 exceeded 30s"},
		{ID: "4", Error: "ExecutionError: agent: status 502"},
		{ID: "5", Error: "no colon here"},
		{ID: "6", Error: ": leading colon"},
	}

	want := map[string]int{
		"TimeoutError":   2,
		"ExecutionError": 1,
		"no colon here":  1,
		"unknown":        1,
	}
	if diff := cmp.Diff(want, FailureModes(traces)); diff != "" {
		t.Errorf("FailureModes() mismatch (-want +got):\n%s", diff)
	}
}

func TestSortedFailureModes(t *testing.T) {
	got := SortedFailureModes(map[string]int{"b": 1, "a": 1, "c": 3})
	want := []FailureMode{{"c", 3}, {"a", 1}, {"b", 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SortedFailureModes() mismatch (-want +got):\n%s", diff)
	}
}
