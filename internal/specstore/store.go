// Package specstore loads the declarative ServiceSpec YAML documents
// that drive discovery, ownership, drift, dashboards, and the
// orchestrator — one file per service under a directory.
package specstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

// Store holds the set of ServiceSpecs loaded from a directory of YAML
// files, refreshable via Reload.
type Store struct {
	dir string

	mu    sync.RWMutex
	specs map[string]*nthlayer.ServiceSpec
}

func New(dir string) (*Store, error) {
	s := &Store{dir: dir, specs: make(map[string]*nthlayer.ServiceSpec)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads every *.yaml/*.yml file under dir, replacing the
// previous snapshot atomically.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("specstore: read dir %s: %w", s.dir, err)
	}

	specs := make(map[string]*nthlayer.ServiceSpec, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("specstore: read %s: %w", entry.Name(), err)
		}

		var spec nthlayer.ServiceSpec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return fmt.Errorf("specstore: parse %s: %w", entry.Name(), err)
		}
		if spec.Name == "" {
			return fmt.Errorf("specstore: %s has no service name", entry.Name())
		}
		specs[spec.Name] = &spec
	}

	s.mu.Lock()
	s.specs = specs
	s.mu.Unlock()
	return nil
}

// Get returns the spec for service, if declared.
func (s *Store) Get(service string) (*nthlayer.ServiceSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[service]
	return spec, ok
}

// Specs returns every declared spec, satisfying deployevents.SpecSource.
func (s *Store) Specs(ctx context.Context) ([]*nthlayer.ServiceSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*nthlayer.ServiceSpec, 0, len(s.specs))
	for _, spec := range s.specs {
		out = append(out, spec)
	}
	return out, nil
}

// Names returns every declared service name.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.specs))
	for name := range s.specs {
		names = append(names, name)
	}
	return names
}
