package indexset

import (
	"reflect"
	"testing"
)

func TestCompress_SmallSets(t *testing.T) {
	cases := []struct {
		name string
		in   []int
		want string
	}{
		{"empty", nil, ""},
		{"single", []int{7}, "7"},
		{"adjacent pair", []int{3, 4}, "3-4"},
		{"separated pair", []int{3, 9}, "3,9"},
		{"duplicates collapse", []int{5, 5, 5}, "5"},
		{"unordered input", []int{4, 3}, "3-4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compress(tc.in); got != tc.want {
				t.Fatalf("Compress(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCompress_UniformStride(t *testing.T) {
	cases := []struct {
		name string
		in   []int
		want string
	}{
		{"contiguous run", []int{0, 1, 2, 3, 4}, "0-4"},
		{"stride ten", []int{8, 18, 28, 38}, "8-38:10"},
		{"stride three", []int{1, 4, 7, 10}, "1-10:3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compress(tc.in); got != tc.want {
				t.Fatalf("Compress(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCompress_PeriodicLanes(t *testing.T) {
	// Gap pattern 1,9 repeating: two interleaved lanes with total stride 10.
	in := []int{5, 6, 15, 16, 25, 26}
	if got := Compress(in); got != "5-25:10,6-26:10" {
		t.Fatalf("Compress(%v) = %q, want %q", in, got, "5-25:10,6-26:10")
	}
}

func TestCompress_ModGrouping(t *testing.T) {
	// A contiguous block plus an even-only run: no global stride, no
	// repeating gap pattern, but residues mod 2 compress well.
	in := []int{0, 1, 2, 3, 4, 5, 6, 20, 22, 24, 26}
	got := Compress(in)
	want := "0-6:2,20-26:2,1-5:2"
	if got != want {
		t.Fatalf("Compress(%v) = %q, want %q", in, got, want)
	}
}

func TestCompress_GreedyFallback(t *testing.T) {
	in := []int{0, 1, 2, 3, 7, 9, 14}
	got := Compress(in)
	want := "0-3,7,9,14"
	if got != want {
		t.Fatalf("Compress(%v) = %q, want %q", in, got, want)
	}
}

func TestExpand_RoundTrip(t *testing.T) {
	sets := [][]int{
		{0, 1, 2, 3, 4},
		{8, 18, 28, 38},
		{5, 6, 15, 16, 25, 26},
		{3, 9},
		{0, 1, 2, 3, 7, 9, 14},
		{0, 1, 2, 3, 4, 5, 6, 20, 22, 24, 26},
	}
	for _, want := range sets {
		spec := Compress(want)
		got, err := Expand(spec)
		if err != nil {
			t.Fatalf("Expand(%q): %v", spec, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip via %q: got %v, want %v", spec, got, want)
		}
	}
}

func TestExpand_Syntax(t *testing.T) {
	got, err := Expand(" 1, 5-7, 10-20:5 ")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []int{1, 5, 6, 7, 10, 15, 20}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}

	if got, err := Expand(""); err != nil || got != nil {
		t.Fatalf("empty spec: got %v, %v", got, err)
	}
}

func TestExpand_Malformed(t *testing.T) {
	for _, spec := range []string{"a", "1,,2", "5-3", "1-10:0", "1-10:-2", "7:3", "-1"} {
		if _, err := Expand(spec); err == nil {
			t.Fatalf("Expand(%q): expected error", spec)
		}
	}
}

func TestCount(t *testing.T) {
	n, err := Count("0-39")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 40 {
		t.Fatalf("Count(0-39) = %d, want 40", n)
	}

	n, err = Count("0-20:10,1-21:10")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 6 {
		t.Fatalf("Count = %d, want 6", n)
	}

	if _, err := Count("bogus"); err == nil {
		t.Fatalf("Count(bogus): expected error")
	}
}

func TestFormat(t *testing.T) {
	if got := Format([]int{9, 1, 5, 1}); got != "1,5,9" {
		t.Fatalf("Format = %q, want %q", got, "1,5,9")
	}
	if got := Format(nil); got != "" {
		t.Fatalf("Format(nil) = %q, want empty", got)
	}
}
