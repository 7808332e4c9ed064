// Package retrieval implements Retrieval/Curation (spec.md §4.12): diverse
// semantic search over the Vector Store, story generation from a free-text
// user prompt, routine CRUD, and a second-pass LLM curator layered on top.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	exerciserepo "github.com/moveset-labs/clipcore/internal/data/repos/exercises"
	types "github.com/moveset-labs/clipcore/internal/domain"
	"github.com/moveset-labs/clipcore/internal/platform/dbctx"
	"github.com/moveset-labs/clipcore/internal/store/vector"
)

// movementCategories is the fixed, ordered set of movement families diverse
// search buckets hits into (spec.md §4.9). Order matters only for
// readability; category membership, not category order, drives the cap.
var movementCategories = []string{"handstand", "stretch", "core", "push", "hip_leg", "balance", "wall", "floor"}

// categoryKeywordsByCategory maps each fixed movement family to the
// keywords that identify it. Keyed by category rather than by keyword so
// categorization can walk movementCategories in its fixed order, never a
// randomized map iteration order.
var categoryKeywordsByCategory = map[string][]string{
	"handstand": {"handstand", "headstand"},
	"stretch":   {"stretch", "mobility"},
	"core":      {"plank", "crunch", "sit up", "situp", "core", "ab "},
	"push":      {"push up", "pushup", "press", "push"},
	"hip_leg":   {"squat", "lunge", "deadlift", "hip", "leg", "glute", "calf"},
	"balance":   {"balance", "stability"},
	"wall":      {"wall"},
	"floor":     {"floor"},
}

// categoryOf resolves the movement family a hit's name/how-to text belongs
// to, checking movementCategories in its fixed order so a text matching
// more than one family always resolves the same way. No match returns "".
func categoryOf(name, howTo string) string {
	haystack := strings.ToLower(name + " " + howTo)
	for _, category := range movementCategories {
		for _, kw := range categoryKeywordsByCategory[category] {
			if strings.Contains(haystack, kw) {
				return category
			}
		}
	}
	return ""
}

// Embedder is the narrow capability diverse search needs to turn query text
// into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

const (
	// DefaultScoreThreshold is the diverse-search similarity floor (spec §4.9).
	DefaultScoreThreshold = 0.3
	// DefaultMaxPerCategory bounds how many hits one movement family may
	// contribute to a single diverse-search result (spec §4.9).
	DefaultMaxPerCategory = 2
	// fetchBuffer is the constant added to 2*k_final when sizing the
	// over-fetch from the Vector Store (spec §4.9: "e.g., 40").
	fetchBuffer = 40
)

// RankedExercise is one diverse-search result: the enriched Exercise row,
// its similarity score, and the movement family it was bucketed into.
type RankedExercise struct {
	Exercise *types.Exercise
	Score    float64
	Category string
}

// DiverseSearch is the core retrieval primitive (spec §4.9): embeds
// queryText, over-fetches from the Vector Store, greedily picks hits in
// descending score while capping how many any one movement family may
// contribute, then enriches survivors with their full Exercise row. Hits
// whose database_id is unknown to the Exercise Store are dropped.
func DiverseSearch(
	ctx context.Context,
	store vector.Store,
	embedder Embedder,
	exercises exerciserepo.ExerciseRepo,
	queryText string,
	kFinal int,
	scoreThreshold float64,
	maxPerCategory int,
) ([]RankedExercise, error) {
	if kFinal <= 0 {
		return nil, fmt.Errorf("k_final must be positive, got %d", kFinal)
	}
	if scoreThreshold <= 0 {
		scoreThreshold = DefaultScoreThreshold
	}
	if maxPerCategory <= 0 {
		maxPerCategory = DefaultMaxPerCategory
	}

	embeddings, err := embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors for query")
	}

	fetchCount := 2*kFinal + fetchBuffer
	hits, err := store.Search(ctx, embeddings[0], fetchCount, scoreThreshold, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	type picked struct {
		hit      vector.Hit
		category string
	}
	selected := make([]picked, 0, kFinal)
	categoryCounts := make(map[string]int, len(movementCategories)+1)

	for _, h := range hits {
		if len(selected) >= kFinal {
			break
		}
		name, _ := h.Payload["name"].(string)
		howTo, _ := h.Payload["how_to"].(string)
		category := categoryOf(name, howTo)
		if categoryCounts[category] >= maxPerCategory {
			continue
		}
		categoryCounts[category]++
		selected = append(selected, picked{hit: h, category: category})
	}

	ids := make([]uuid.UUID, 0, len(selected))
	for _, p := range selected {
		rawID, _ := p.hit.Payload["database_id"].(string)
		id, err := uuid.Parse(rawID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	rows, err := exercises.GetMany(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return nil, fmt.Errorf("enrich diverse search hits: %w", err)
	}
	rowByID := make(map[uuid.UUID]*types.Exercise, len(rows))
	for _, r := range rows {
		rowByID[r.ID] = r
	}

	out := make([]RankedExercise, 0, len(selected))
	for _, p := range selected {
		rawID, _ := p.hit.Payload["database_id"].(string)
		id, err := uuid.Parse(rawID)
		if err != nil {
			continue
		}
		row, ok := rowByID[id]
		if !ok {
			continue // orphan: vector entry has no matching Exercise row
		}
		out = append(out, RankedExercise{Exercise: row, Score: p.hit.Score, Category: p.category})
	}
	return out, nil
}
