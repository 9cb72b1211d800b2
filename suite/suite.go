// Package suite holds the registry of runnable test suites and the
// deterministic partition that assigns each test to exactly one rank.
package suite

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/shardrun/shardrun/coverage"
)

// Case is one opaque test procedure. Fn returning nil records a pass,
// returning an error records a failure, panicking records an error.
type Case struct {
	Name string
	Fn   func(ctx context.Context, cov *coverage.Recorder) error
}

// Suite is an ordered collection of named cases.
type Suite struct {
	Selector string
	Cases    []Case
}

var (
	mu       sync.RWMutex
	registry = make(map[string]*Suite)
)

// Register makes a suite available under its selector. Registering the
// same selector twice or duplicate case names within a suite panics, as
// both break the exact-cover guarantee of the partition.
func Register(selector string, cases []Case) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[selector]; ok {
		panic(fmt.Sprintf("suite %q registered twice", selector))
	}
	seen := make(map[string]struct{}, len(cases))
	for _, c := range cases {
		if c.Name == "" {
			panic(fmt.Sprintf("suite %q contains a case with no name", selector))
		}
		if c.Fn == nil {
			panic(fmt.Sprintf("suite %q case %q has no body", selector, c.Name))
		}
		if _, dup := seen[c.Name]; dup {
			panic(fmt.Sprintf("suite %q registers case %q twice", selector, c.Name))
		}
		seen[c.Name] = struct{}{}
	}
	registry[selector] = &Suite{Selector: selector, Cases: cases}
}

// Lookup returns the suite registered under selector.
func Lookup(selector string) (*Suite, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := registry[selector]
	if !ok {
		return nil, fmt.Errorf("no suite registered for selector %q (have %v)", selector, selectors())
	}
	return s, nil
}

// selectors lists registered selectors in sorted order. Callers hold mu.
func selectors() []string {
	out := make([]string, 0, len(registry))
	for sel := range registry {
		out = append(out, sel)
	}
	sort.Strings(out)
	return out
}

// RankFor assigns a test name to a rank. It is a pure function of
// (name, groupSize): the same inputs always yield the same rank, so a
// rerun with the same selector and group size reproduces the partition.
func RankFor(name string, groupSize int) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return int(h.Sum32() % uint32(groupSize))
}

// Partition returns the cases assigned to rank, preserving the suite's
// registration order. The union of all ranks' partitions is the full
// suite and no case appears in more than one partition.
func (s *Suite) Partition(rank, groupSize int) []Case {
	var out []Case
	for _, c := range s.Cases {
		if RankFor(c.Name, groupSize) == rank {
			out = append(out, c)
		}
	}
	return out
}
