package main

import (
	"io"
	"strings"
	"testing"
)

const sampleOutput = `goos: linux
BenchmarkVerifyAccess-8   	  200000	      5000 ns/op	    1200 B/op	      20 allocs/op
BenchmarkVerifyAccess-8   	  200000	      5200 ns/op	    1200 B/op	      20 allocs/op
BenchmarkRefresh-8        	   10000	    100000 ns/op	    9000 B/op	     120 allocs/op
BenchmarkUntracked-8      	   10000	       1 ns/op
PASS
`

func TestParseBenchmarks(t *testing.T) {
	set, err := parseBenchmarks(strings.NewReader(sampleOutput))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := set["BenchmarkVerifyAccess"]["ns/op"]; len(got) != 2 || got[1] != 5200 {
		t.Fatalf("unexpected verify samples: %v", got)
	}
	if _, ok := set["BenchmarkUntracked"]; ok {
		t.Fatalf("untracked benchmark should be skipped")
	}
}

func TestNormalizeBenchmarkName(t *testing.T) {
	if got := normalizeBenchmarkName("BenchmarkRefresh-16"); got != "BenchmarkRefresh" {
		t.Fatalf("got %q", got)
	}
	if got := normalizeBenchmarkName("BenchmarkRefresh"); got != "BenchmarkRefresh" {
		t.Fatalf("got %q", got)
	}
}

func TestMedian(t *testing.T) {
	if got := median([]float64{3, 1, 2}); got != 2 {
		t.Fatalf("odd: got %v", got)
	}
	if got := median([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Fatalf("even: got %v", got)
	}
}

func TestCompareFlagsRegression(t *testing.T) {
	base := sampleSet{"BenchmarkRefresh": {"ns/op": {100}}}
	cand := sampleSet{"BenchmarkRefresh": {"ns/op": {200}}}

	failures := compare(io.Discard, base, cand, 0.30)
	var regressed bool
	for _, f := range failures {
		if strings.Contains(f, "BenchmarkRefresh ns/op regressed") {
			regressed = true
		}
	}
	if !regressed {
		t.Fatalf("expected refresh regression, got %v", failures)
	}
}
