package graph

import (
	"context"
	"sort"

	"github.com/siherrmann/graphrag/model"
)

// GraphDB defines the interface for graph operations
type GraphDB interface {
	SelectEdgesConnected(ctx context.Context, ref model.RecordRef) ([]*model.Edge, error)
}

// TraversalResult is a record reached by a traversal with its distance from
// the source, the path leading to it and the edge it was reached over.
type TraversalResult struct {
	Record   model.RecordRef   `json:"record"`
	Distance int               `json:"distance"`
	Path     []model.RecordRef `json:"path"`
	Relation string            `json:"relation,omitempty"`
	Weight   float64           `json:"weight,omitempty"`
}

// BFS performs breadth-first search from a source record.
// Edges are followed in both directions. When relations is not empty only
// edges of these relation types are followed.
func BFS(ctx context.Context, db GraphDB, source model.RecordRef, maxHops int, relations []string) ([]*TraversalResult, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}

	allowed := relationSet(relations)
	visited := map[model.RecordRef]bool{source: true}
	queue := []*TraversalResult{{
		Record:   source,
		Distance: 0,
		Path:     []model.RecordRef{source},
	}}

	var results []*TraversalResult
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		results = append(results, current)

		if current.Distance >= maxHops {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, model.NewKindError(model.ErrStorage, "bfs", err)
		}

		edges, err := db.SelectEdgesConnected(ctx, current.Record)
		if err != nil {
			return nil, model.NewKindError(model.ErrStorage, "select connected edges", err)
		}

		for _, step := range nextSteps(edges, current.Record, allowed) {
			if visited[step.Record] {
				continue
			}
			visited[step.Record] = true

			step.Distance = current.Distance + 1
			step.Path = extendPath(current.Path, step.Record)
			queue = append(queue, step)
		}
	}

	return results, nil
}

// DFS performs depth-first search from a source record.
// It reaches the same records as BFS: a record first found on a long path is
// walked again when a shorter path to it turns up, and keeps the shorter path.
// Each record is returned once, in order of discovery.
func DFS(ctx context.Context, db GraphDB, source model.RecordRef, maxHops int, relations []string) ([]*TraversalResult, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}

	reached := make(map[model.RecordRef]*TraversalResult)
	var results []*TraversalResult

	start := &TraversalResult{Record: source, Path: []model.RecordRef{source}}
	err := dfsRecursive(ctx, db, start, maxHops, relationSet(relations), reached, &results)
	if err != nil {
		return nil, err
	}

	return results, nil
}

func dfsRecursive(
	ctx context.Context,
	db GraphDB,
	current *TraversalResult,
	maxHops int,
	allowed map[string]bool,
	reached map[model.RecordRef]*TraversalResult,
	results *[]*TraversalResult,
) error {
	if known, ok := reached[current.Record]; ok {
		if known.Distance <= current.Distance {
			return nil
		}
		*known = *current
		current = known
	} else {
		reached[current.Record] = current
		*results = append(*results, current)
	}

	if current.Distance >= maxHops {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return model.NewKindError(model.ErrStorage, "dfs", err)
	}

	edges, err := db.SelectEdgesConnected(ctx, current.Record)
	if err != nil {
		return model.NewKindError(model.ErrStorage, "select connected edges", err)
	}

	distance := current.Distance + 1
	for _, step := range nextSteps(edges, current.Record, allowed) {
		if known, ok := reached[step.Record]; ok && known.Distance <= distance {
			continue
		}

		step.Distance = distance
		step.Path = extendPath(current.Path, step.Record)
		err := dfsRecursive(ctx, db, step, maxHops, allowed, reached, results)
		if err != nil {
			return err
		}
	}

	return nil
}

// GetNeighbors retrieves the records one hop away from ref
func GetNeighbors(ctx context.Context, db GraphDB, ref model.RecordRef, relations []string) ([]*TraversalResult, error) {
	results, err := BFS(ctx, db, ref, 1, relations)
	if err != nil {
		return nil, err
	}

	// Skip the source itself
	return results[1:], nil
}

// nextSteps returns the other endpoint of every allowed edge of ref,
// strongest edge first. Parallel edges to the same record keep the strongest.
func nextSteps(edges []*model.Edge, ref model.RecordRef, allowed map[string]bool) []*TraversalResult {
	best := make(map[model.RecordRef]*TraversalResult)
	for _, edge := range edges {
		if len(allowed) > 0 && !allowed[edge.Relation] {
			continue
		}
		other, ok := edge.Other(ref)
		if !ok || other == ref {
			continue
		}
		if step, ok := best[other]; ok && step.Weight >= edge.Weight {
			continue
		}
		best[other] = &TraversalResult{Record: other, Relation: edge.Relation, Weight: edge.Weight}
	}

	steps := make([]*TraversalResult, 0, len(best))
	for _, step := range best {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].Weight != steps[j].Weight {
			return steps[i].Weight > steps[j].Weight
		}
		return steps[i].Record.String() < steps[j].Record.String()
	})
	return steps
}

func extendPath(path []model.RecordRef, ref model.RecordRef) []model.RecordRef {
	newPath := make([]model.RecordRef, len(path), len(path)+1)
	copy(newPath, path)
	return append(newPath, ref)
}

func relationSet(relations []string) map[string]bool {
	set := make(map[string]bool, len(relations))
	for _, r := range relations {
		set[r] = true
	}
	return set
}
