// Package artifact implements the on-disk JSON artifact store: one
// directory per kind, one file per artifact, ids slugified from the
// human-provided name. Create and update are the same operation;
// collisions overwrite by contract.
package artifact

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/straylight-ai/crucible/config"
	"github.com/straylight-ai/crucible/types"
)

// Kind names an artifact family and selects its directory.
type Kind string

const (
	KindEndpoint       Kind = "endpoint"
	KindRecipe         Kind = "recipe"
	KindCookbook       Kind = "cookbook"
	KindDataset        Kind = "dataset"
	KindPromptTemplate Kind = "prompt-template"
	KindRunner         Kind = "runner"
	KindResult         Kind = "result"
)

// Store provides CRUD over JSON artifacts grouped by kind.
type Store struct {
	dirs   map[Kind]string
	logger *slog.Logger
}

// NewStore builds a Store over the configured directories.
func NewStore(cfg config.Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dirs: map[Kind]string{
			KindEndpoint:       cfg.Dirs.ConnectorsEndpoints,
			KindRecipe:         cfg.Dirs.Recipes,
			KindCookbook:       cfg.Dirs.Cookbooks,
			KindDataset:        cfg.Dirs.Datasets,
			KindPromptTemplate: cfg.Dirs.PromptTemplates,
			KindRunner:         cfg.Dirs.Runners,
			KindResult:         cfg.Dirs.Results,
		},
		logger: logger,
	}
}

// Dir returns the directory backing a kind.
func (s *Store) Dir(kind Kind) string {
	return s.dirs[kind]
}

func (s *Store) path(kind Kind, id string) (string, error) {
	dir, ok := s.dirs[kind]
	if !ok {
		return "", &types.ValidationError{Field: "kind", Message: "unknown artifact kind " + string(kind)}
	}
	if id == "" {
		return "", &types.ValidationError{Field: "id", Message: "artifact id is required"}
	}
	return filepath.Join(dir, id+".json"), nil
}

// Create writes (or overwrites) the artifact file for id. The payload
// is stored pretty-printed so artifacts stay hand-editable.
func (s *Store) Create(kind Kind, id string, v any) error {
	path, err := s.path(kind, id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return types.WrapError(types.ARTIFACT_IO_ERROR, "creating artifact directory", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return types.WrapError(types.ARTIFACT_IO_ERROR, "encoding artifact "+id, err)
	}
	// write-then-rename keeps readers from seeing a torn file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return types.WrapError(types.ARTIFACT_IO_ERROR, "writing artifact "+id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return types.WrapError(types.ARTIFACT_IO_ERROR, "committing artifact "+id, err)
	}
	s.logger.Debug("artifact written", "kind", string(kind), "id", id)
	return nil
}

// Read decodes the artifact file for id into out.
func (s *Store) Read(kind Kind, id string, out any) error {
	path, err := s.path(kind, id)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &types.NotFoundError{Kind: string(kind), ID: id}
		}
		return types.WrapError(types.ARTIFACT_IO_ERROR, "reading artifact "+id, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return types.WrapError(types.ARTIFACT_IO_ERROR, "decoding artifact "+id, err)
	}
	return nil
}

// Delete removes the artifact file for id.
func (s *Store) Delete(kind Kind, id string) error {
	path, err := s.path(kind, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return &types.NotFoundError{Kind: string(kind), ID: id}
		}
		return types.WrapError(types.ARTIFACT_IO_ERROR, "deleting artifact "+id, err)
	}
	return nil
}

// Exists reports whether an artifact file exists for id.
func (s *Store) Exists(kind Kind, id string) bool {
	path, err := s.path(kind, id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// List returns the sorted ids of every artifact of a kind.
func (s *Store) List(kind Kind) ([]string, error) {
	dir, ok := s.dirs[kind]
	if !ok {
		return nil, &types.ValidationError{Field: "kind", Message: "unknown artifact kind " + string(kind)}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.WrapError(types.ARTIFACT_IO_ERROR, "listing "+string(kind), err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// ModTime returns the artifact file's change time; it backs the
// created_date fields derived at read time.
func (s *Store) ModTime(kind Kind, id string) (time.Time, error) {
	path, err := s.path(kind, id)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, &types.NotFoundError{Kind: string(kind), ID: id}
		}
		return time.Time{}, types.WrapError(types.ARTIFACT_IO_ERROR, "stat artifact "+id, err)
	}
	return info.ModTime(), nil
}
