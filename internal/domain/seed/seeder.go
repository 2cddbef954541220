package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/remotedom/internal/domain/environment"
	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
	"github.com/GriffinCanCode/remotedom/internal/domain/tree"
)

// DefaultPattern matches every supported seed file below the seed directory
const DefaultPattern = "**/*.{yaml,yml,toml,json}"

// Loader finds and parses seed files
type Loader struct {
	pattern string
}

// NewLoader creates a loader matching pattern, relative to the walked
// directory. An empty pattern uses DefaultPattern.
func NewLoader(pattern string) (*Loader, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid seed pattern %q", pattern)
	}
	return &Loader{pattern: pattern}, nil
}

// Load walks dir and parses every matching file. Documents come back sorted
// by path. Files that fail to parse are reported in the joined error; the
// rest are still returned.
func (l *Loader) Load(ctx context.Context, dir string) ([]*Document, error) {
	var (
		mu   sync.Mutex
		docs []*Document
		errs []error
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		// Check for context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return nil
		}
		if ok, _ := doublestar.Match(l.pattern, filepath.ToSlash(rel)); !ok {
			return nil
		}

		data, err := os.ReadFile(p)
		if err == nil {
			var doc *Document
			doc, err = Parse(p, data)
			if err == nil {
				mu.Lock()
				docs = append(docs, doc)
				mu.Unlock()
				return nil
			}
		}

		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, errors.Join(errs...)
}

// Report summarises a seeding run
type Report struct {
	Loaded int `json:"loaded"`
	Failed int `json:"failed"`
	Nodes  int `json:"nodes"`
}

// Seeder applies seed documents to a registry
type Seeder struct {
	registry *environment.Registry
	loader   *Loader
	logger   *zap.Logger
}

// NewSeeder creates a seeder
func NewSeeder(registry *environment.Registry, loader *Loader, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		registry: registry,
		loader:   loader,
		logger:   logger,
	}
}

// Seed loads every document under dir and builds its surface. A missing
// directory is not an error.
func (s *Seeder) Seed(ctx context.Context, dir string) (Report, error) {
	var report Report

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		s.logger.Warn("Seed directory not found", zap.String("dir", dir))
		return report, nil
	}

	s.logger.Info("Seeding surfaces", zap.String("dir", dir))

	docs, loadErr := s.loader.Load(ctx, dir)
	if loadErr != nil {
		s.logger.Warn("Some seed files failed to parse", zap.Error(loadErr))
	}

	for _, doc := range docs {
		if err := Validate(doc); err != nil {
			s.logger.Warn("Invalid seed document", zap.String("path", doc.Path), zap.Error(err))
			report.Failed++
			continue
		}

		n, err := Apply(s.registry.Get(doc.URI), doc)
		if err != nil {
			s.logger.Warn("Failed to apply seed", zap.String("path", doc.Path), zap.Error(err))
			report.Failed++
			continue
		}

		s.logger.Debug("Seeded surface",
			zap.String("uri", doc.URI),
			zap.String("path", doc.Path),
			zap.Int("nodes", n))
		report.Loaded++
		report.Nodes += n
	}

	s.logger.Info("Seeding complete",
		zap.Int("loaded", report.Loaded),
		zap.Int("failed", report.Failed),
		zap.Int("nodes", report.Nodes))
	return report, loadErr
}

// Apply builds doc's nodes under the surface root through regular surface
// operations, so attached clients receive the mutations. It returns the
// number of nodes created.
func Apply(s *surface.Surface, doc *Document) (int, error) {
	created := 0
	for _, n := range doc.Nodes {
		id, err := build(s, n, &created)
		if err != nil {
			return created, err
		}
		if err := s.AppendChild(s.Root(), id); err != nil {
			return created, err
		}
	}
	return created, nil
}

func build(s *surface.Surface, n Node, created *int) (tree.NodeID, error) {
	*created++
	if n.Text != nil {
		return s.CreateText(*n.Text), nil
	}

	id := s.CreateElement(n.Element)
	for _, name := range n.PropertyNames() {
		if err := s.SetProperty(id, name, n.Properties[name]); err != nil {
			return "", err
		}
	}
	for _, c := range n.Children {
		child, err := build(s, c, created)
		if err != nil {
			return "", err
		}
		if err := s.AppendChild(id, child); err != nil {
			return "", err
		}
	}
	return id, nil
}
