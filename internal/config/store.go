package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"infergate/internal/common/fsutil"
)

// Well-known store keys shared by the gateway, the supervisor and any
// external worker configuration.
const (
	KeyModel       = "model_identifier"
	KeyGatewayPort = "gateway_port"
	KeyBackendURL  = "backend_url"
)

// EnvStorePath overrides the default store location when set.
const EnvStorePath = "INFERGATE_CONFIG"

// Store is the persisted key=value configuration file. The format is
// line-oriented `key=value` with '#' comments so shell scripts and Go
// consumers can share it. Values are written once during initial setup and
// appended by explicit reconfiguration; the last occurrence of a key wins.
type Store struct {
	path   string
	values map[string]string
}

// StorePath returns the effective store file path: $INFERGATE_CONFIG when
// set, else ~/.infergate/config.
func StorePath() (string, error) {
	if p := os.Getenv(EnvStorePath); p != "" {
		return fsutil.ExpandHome(p)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".infergate", "config"), nil
}

// OpenStore reads the store at path. A missing file yields an empty store;
// the file is created on first Set.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, values: map[string]string{}}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		s.values[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetInt parses the value for key as an integer.
func (s *Store) GetInt(key string) (int, bool) {
	v, ok := s.values[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set appends key=value to the file and updates the in-memory view.
// Appending rather than rewriting keeps earlier lines intact for any
// consumer that already read them.
func (s *Store) Set(key, value string) error {
	if strings.ContainsAny(key, "=\n") || strings.Contains(value, "\n") {
		return fmt.Errorf("invalid store entry %q=%q", key, value)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s=%s\n", key, value); err != nil {
		return err
	}
	s.values[key] = value
	return nil
}

// Keys returns all known keys, sorted.
func (s *Store) Keys() []string {
	out := make([]string, 0, len(s.values))
	for k := range s.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }
