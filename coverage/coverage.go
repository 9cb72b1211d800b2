// Package coverage holds the per-rank coverage map, the commutative merge
// used by the aggregator, and the line-oriented artifact codec consumed by
// the external upload collaborator.
package coverage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Key identifies one instrumented source line.
type Key struct {
	File string
	Line int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.File, k.Line)
}

// Map records how many times each instrumented line was executed.
// A line absent from the map contributes a count of zero.
type Map map[Key]uint64

// Merge adds src's counts into m. Merging is associative and commutative:
// the aggregate is identical regardless of the order ranks are merged in.
func (m Map) Merge(src Map) {
	for k, hits := range src {
		m[k] += hits
	}
}

// Clone returns an independent copy of the map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Lines returns the number of distinct instrumented lines in the map.
func (m Map) Lines() int {
	return len(m)
}

// Covered returns the number of lines with a non-zero hit count.
func (m Map) Covered() int {
	n := 0
	for _, hits := range m {
		if hits > 0 {
			n++
		}
	}
	return n
}

// sortedKeys returns the map's keys ordered by file then line, so the
// emitted artifact is deterministic.
func (m Map) sortedKeys() []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].File != keys[j].File {
			return keys[i].File < keys[j].File
		}
		return keys[i].Line < keys[j].Line
	})
	return keys
}

// WriteTo emits the map in the artifact wire format, one triple per line:
//
//	<file>:<line> <hits>
//
// Lines are sorted by file then line number.
func (m Map) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64
	for _, k := range m.sortedKeys() {
		if strings.ContainsAny(k.File, "\r\n") {
			return written, fmt.Errorf("file name %q contains a line break", k.File)
		}
		n, err := fmt.Fprintf(bw, "%s:%d %d\n", k.File, k.Line, m[k])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, bw.Flush()
}

// Parse reads the artifact wire format back into a Map. Parsing the output
// of WriteTo reproduces the original map exactly. Input line order does not
// matter; duplicate keys accumulate.
func Parse(r io.Reader) (Map, error) {
	m := make(Map)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		key, hits, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("coverage artifact line %d: %w", lineNo, err)
		}
		m[key] += hits
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseLine decodes one artifact line. File names may contain spaces, so
// the line is parsed right to left: the last whitespace-separated token is
// the hit count, the rest is '<file>:<line>'.
func parseLine(text string) (Key, uint64, error) {
	sp := strings.LastIndexAny(text, " \t")
	if sp < 0 {
		return Key{}, 0, fmt.Errorf("expected '<file>:<line> <hits>', got %q", text)
	}
	hits, err := strconv.ParseUint(text[sp+1:], 10, 64)
	if err != nil {
		return Key{}, 0, fmt.Errorf("bad hit count in %q: %w", text[sp+1:], err)
	}
	loc := strings.TrimRight(text[:sp], " \t")
	sep := strings.LastIndex(loc, ":")
	if sep <= 0 {
		return Key{}, 0, fmt.Errorf("missing ':' separator in %q", loc)
	}
	line, err := strconv.Atoi(loc[sep+1:])
	if err != nil {
		return Key{}, 0, fmt.Errorf("bad line number in %q: %w", loc, err)
	}
	return Key{File: loc[:sep], Line: line}, hits, nil
}

// WriteFile writes the artifact to path.
func (m Map) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating coverage artifact: %w", err)
	}
	if _, err := m.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("writing coverage artifact: %w", err)
	}
	return f.Close()
}

// ReadFile parses the artifact at path.
func ReadFile(path string) (Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening coverage artifact: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// MarshalJSON encodes the map as {"file:line": hits} so WorkerResult
// records survive a JSON round trip with key identity intact.
func (m Map) MarshalJSON() ([]byte, error) {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k.String()] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the {"file:line": hits} form.
func (m *Map) UnmarshalJSON(data []byte) error {
	var raw map[string]uint64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Map, len(raw))
	for s, v := range raw {
		key, _, err := parseLine(s + " 0")
		if err != nil {
			return fmt.Errorf("coverage key %q: %w", s, err)
		}
		out[key] = v
	}
	*m = out
	return nil
}

// Recorder accumulates line hits for one rank. It is safe for concurrent
// use; test bodies may hit it from multiple goroutines.
type Recorder struct {
	mu sync.Mutex
	m  Map
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{m: make(Map)}
}

// Hit records n executions of the given line.
func (r *Recorder) Hit(file string, line int, n uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[Key{File: file, Line: line}] += n
}

// Snapshot returns a copy of the recorded map.
func (r *Recorder) Snapshot() Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m.Clone()
}
