package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/danshapiro/memclimb/internal/indexset"
)

// runCompress turns a comma-separated index list into the compact range
// spec used for array resubmission.
func runCompress(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		usage()
		return 1
	}

	var indices []int
	for _, part := range strings.Split(args[0], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			fmt.Fprintf(stderr, "bad index %q\n", part)
			return 1
		}
		indices = append(indices, n)
	}

	fmt.Fprintln(stdout, indexset.Compress(indices))
	return 0
}

// runExpand is the inverse: a range spec back to a plain index list. A
// malformed spec is an error, never silently coerced.
func runExpand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		usage()
		return 1
	}

	indices, err := indexset.Expand(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, indexset.Format(indices))
	return 0
}
