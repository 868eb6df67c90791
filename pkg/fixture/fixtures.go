// Package fixture serves recorded agent streams and history over the same
// routes as the Yuxi-Know backend, for tests and offline development.
package fixture

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Stream names with special meaning
const (
	StreamChat   = "chat"
	StreamResume = "resume"
)

// Fixtures is the recorded data a Server replays
type Fixtures struct {
	// Streams maps a name to NDJSON lines. Chat requests replay StreamChat
	// unless their config carries a "fixture" key naming another stream.
	Streams map[string][]string
	// History maps thread ids to persisted messages
	History map[string][]json.RawMessage
	// States maps thread ids to agent_state objects
	States map[string]json.RawMessage
	// Delay is slept between streamed lines
	Delay time.Duration
	// Encoding compresses stream bodies: "", "br" or "gzip"
	Encoding string
}

// LoadFixtures reads every *.ndjson file in dir as a stream named after the
// file, plus history.json and state.json when present. Both JSON files map
// thread ids to their content.
func LoadFixtures(dir string) (Fixtures, error) {
	fx := Fixtures{
		Streams: make(map[string][]string),
		History: make(map[string][]json.RawMessage),
		States:  make(map[string]json.RawMessage),
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.ndjson"))
	if err != nil {
		return Fixtures{}, fmt.Errorf("list fixtures: %w", err)
	}
	for _, p := range paths {
		lines, err := readLines(p)
		if err != nil {
			return Fixtures{}, err
		}
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		fx.Streams[name] = lines
	}

	if err := readJSON(filepath.Join(dir, "history.json"), &fx.History); err != nil {
		return Fixtures{}, err
	}
	if err := readJSON(filepath.Join(dir, "state.json"), &fx.States); err != nil {
		return Fixtures{}, err
	}
	return fx, nil
}

// readLines returns the non-blank lines of an NDJSON file. Lines are kept
// as written so malformed fixtures replay malformed.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64<<10), len(data)+1)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return lines, nil
}

// readJSON decodes path into v, leaving v untouched when the file is absent
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
