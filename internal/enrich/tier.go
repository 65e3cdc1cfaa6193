// Package enrich backfills missing target names through a cascade of name
// sources, each consulted only for keys still unresolved.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/guokai8/pathwaydb/internal/apperrors"
)

// Emit receives one batch of resolved names. Returning an error stops the tier.
type Emit func(found map[string]string) error

// Tier is one name source in the cascade.
type Tier interface {
	Name() string
	// Resolve looks up keys and reports results in batches through emit.
	// Keys it cannot resolve are simply not emitted.
	Resolve(ctx context.Context, keys []string, emit Emit) error
}

// MapTier resolves from an in-memory id→name map, such as term names
// shipped with a distribution.
type MapTier struct {
	TierName  string
	Names     map[string]string
	BatchSize int
}

func (t *MapTier) Name() string { return t.TierName }

func (t *MapTier) Resolve(ctx context.Context, keys []string, emit Emit) error {
	size := t.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	found := map[string]string{}
	for _, k := range keys {
		if name := t.Names[k]; name != "" {
			found[k] = name
		}
		if len(found) >= size {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := emit(found); err != nil {
				return err
			}
			found = map[string]string{}
		}
	}
	if len(found) == 0 {
		return nil
	}
	return emit(found)
}

// LoadNameMap reads a JSON object of id→name.
func LoadNameMap(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.New("enrich.load_names", apperrors.ErrConfiguration, err)
	}
	var names map[string]string
	if err := json.Unmarshal(b, &names); err != nil {
		return nil, apperrors.New("enrich.load_names", apperrors.ErrParse, fmt.Errorf("%s: %w", path, err))
	}
	return names, nil
}

// SaveNameMap writes names as an indented JSON object with sorted keys.
func SaveNameMap(path string, names map[string]string) error {
	b, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// batches splits keys into chunks of at most size.
func batches(keys []string, size int) [][]string {
	var out [][]string
	for size < len(keys) {
		keys, out = keys[size:], append(out, keys[:size:size])
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
