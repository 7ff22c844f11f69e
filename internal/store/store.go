// Package store persists the whitelist: per-person prototype embeddings and
// their sub-sampled reference sets. The default backend writes NPZ archives
// compatible with the numpy tooling that produced the original whitelists;
// a PostgreSQL backend is available for shared deployments.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
)

// ErrNotBuilt is returned when the whitelist has not been built yet.
var ErrNotBuilt = errors.New("whitelist not built")

// Whitelist holds everything the recognizer needs: one prototype per person
// and the reference embeddings the prototype was aggregated from.
type Whitelist struct {
	Prototypes map[string][]float32
	References map[string][][]float32
}

// Persons returns the enrolled person names in sorted order.
func (w *Whitelist) Persons() []string {
	names := make([]string, 0, len(w.Prototypes))
	for name := range w.Prototypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store persists and loads whitelist data.
type Store interface {
	// SaveWhitelist replaces the stored whitelist.
	SaveWhitelist(ctx context.Context, wl *Whitelist) error
	// LoadPrototypes loads only the per-person prototypes.
	// Returns ErrNotBuilt when no whitelist has been stored.
	LoadPrototypes(ctx context.Context) (map[string][]float32, error)
	// LoadWhitelist loads prototypes and references.
	LoadWhitelist(ctx context.Context) (*Whitelist, error)
}

// ArchiveStore persists the whitelist as two NPZ archives, one for
// prototypes and one for references.
type ArchiveStore struct {
	PrototypesPath string
	ReferencesPath string
}

// NewArchiveStore creates an archive-backed store.
func NewArchiveStore(prototypesPath, referencesPath string) *ArchiveStore {
	return &ArchiveStore{
		PrototypesPath: prototypesPath,
		ReferencesPath: referencesPath,
	}
}

// SaveWhitelist writes both archives.
func (s *ArchiveStore) SaveWhitelist(_ context.Context, wl *Whitelist) error {
	protos := make(map[string]Array, len(wl.Prototypes))
	for name, proto := range wl.Prototypes {
		protos[name] = VectorArray(proto)
	}
	if err := WriteNPZ(s.PrototypesPath, protos); err != nil {
		return fmt.Errorf("saving prototypes: %w", err)
	}

	refs := make(map[string]Array, len(wl.References))
	for name, rows := range wl.References {
		refs[name] = MatrixArray(rows)
	}
	if err := WriteNPZ(s.ReferencesPath, refs); err != nil {
		return fmt.Errorf("saving references: %w", err)
	}
	return nil
}

// LoadPrototypes reads the prototype archive.
func (s *ArchiveStore) LoadPrototypes(_ context.Context) (map[string][]float32, error) {
	if _, err := os.Stat(s.PrototypesPath); os.IsNotExist(err) {
		return nil, ErrNotBuilt
	}

	arrays, err := ReadNPZ(s.PrototypesPath)
	if err != nil {
		return nil, fmt.Errorf("loading prototypes: %w", err)
	}

	prototypes := make(map[string][]float32, len(arrays))
	for name, arr := range arrays {
		vec, err := arr.Vector()
		if err != nil {
			return nil, fmt.Errorf("prototype %s: %w", name, err)
		}
		prototypes[name] = vec
	}
	return prototypes, nil
}

// LoadWhitelist reads both archives. A missing reference archive is not an
// error; recognition only needs prototypes.
func (s *ArchiveStore) LoadWhitelist(ctx context.Context) (*Whitelist, error) {
	prototypes, err := s.LoadPrototypes(ctx)
	if err != nil {
		return nil, err
	}

	wl := &Whitelist{
		Prototypes: prototypes,
		References: make(map[string][][]float32),
	}

	if _, err := os.Stat(s.ReferencesPath); os.IsNotExist(err) {
		return wl, nil
	}

	arrays, err := ReadNPZ(s.ReferencesPath)
	if err != nil {
		return nil, fmt.Errorf("loading references: %w", err)
	}
	for name, arr := range arrays {
		rows, err := arr.Matrix()
		if err != nil {
			return nil, fmt.Errorf("references %s: %w", name, err)
		}
		wl.References[name] = rows
	}
	return wl, nil
}
