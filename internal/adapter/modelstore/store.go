// Package modelstore persists fitted segmentation models as MessagePack files.
package modelstore

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/segment"
)

const (
	filePrefix = "segment_model_"
	fileExt    = ".msgpack"
)

// Store writes one file per (year, scale) model into a directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a Store rooted at dir. The directory is created on first save.
func New(dir string, logger *slog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// FileName returns the file name a model key is stored under. Keys that would name a path
// outside the store directory are rejected with *domain.MalformedInputError.
func FileName(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`+"\x00") || strings.Contains(key, "..") {
		return "", &domain.MalformedInputError{Field: "bal", Reason: fmt.Sprintf("model key %q is not a valid file name", key)}
	}
	return filePrefix + key + fileExt, nil
}

// Path returns the full path of the model of one (year, scale) unit.
func (s *Store) Path(year int, scale string) (string, error) {
	name, err := FileName(domain.ModelKey(year, scale))
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// SaveModels writes every model, keyed by model key, replacing existing files.
func (s *Store) SaveModels(models map[string]*segment.Model) error {
	if len(models) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}

	keys := make([]string, 0, len(models))
	for k := range models {
		if _, err := FileName(k); err != nil {
			return fmt.Errorf("save model %s: %w", k, err)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name, _ := FileName(key)
		path := filepath.Join(s.dir, name)
		if err := writeModel(path, models[key]); err != nil {
			return fmt.Errorf("save model %s: %w", key, err)
		}
		s.logger.Debug("model saved", "key", key, "path", path)
	}
	s.logger.Info("models saved", "count", len(models), "dir", s.dir)
	return nil
}

// Load reads the model of one (year, scale) unit.
func (s *Store) Load(year int, scale string) (*segment.Model, error) {
	path, err := s.Path(year, scale)
	if err != nil {
		return nil, err
	}
	return readModel(path)
}

// LoadAll reads every model file in the directory, ordered by key.
func (s *Store) LoadAll() ([]*segment.Model, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	var out []*segment.Model
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		m, err := readModel(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func writeModel(path string, m *segment.Model) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(m); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readModel(path string) (*segment.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	dec := msgpack.NewDecoder(bufio.NewReader(f))
	dec.SetCustomStructTag("json")
	var m segment.Model
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	return &m, nil
}
