package cli

import (
	"reflect"
	"testing"
)

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b ", []string{"a", "b"}},
		{"a,a,b", []string{"a", "b"}},
		{"a,,b", []string{"a", "b"}},
	}

	for _, tc := range cases {
		got := splitCSV(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitCSV(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseIDList(t *testing.T) {
	ids, err := parseIDList("3, 1,2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{3, 1, 2}) {
		t.Fatalf("unexpected ids: %v", ids)
	}

	if _, err := parseIDList("1,x"); err == nil {
		t.Fatalf("expected error for non-numeric id")
	}
	if _, err := parseIDList("0"); err == nil {
		t.Fatalf("expected error for non-positive id")
	}

	ids, err = parseIDList("")
	if err != nil || ids != nil {
		t.Fatalf("empty input should yield nil, got %v, %v", ids, err)
	}
}

func TestFormatIDs(t *testing.T) {
	if got := formatIDs(nil); got != "-" {
		t.Fatalf("formatIDs(nil) = %q", got)
	}
	if got := formatIDs([]int{1, 2, 3}); got != "1,2,3" {
		t.Fatalf("formatIDs = %q", got)
	}
}
