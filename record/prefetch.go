package record

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mickamy/ormfields/orm"
	"github.com/mickamy/ormfields/schema"
)

// prefetcher links the parents every inherited field of m reads from.
// Each relation level of each prefetch path costs one IN query; levels
// shared between paths are loaded once.
func (s *Store) prefetcher(m *schema.Model) orm.PreloaderFunc[Record] {
	paths := m.PrefetchPaths()
	return func(ctx context.Context, db orm.Querier, results []Record) error {
		roots := make([]*Record, len(results))
		for i := range results {
			roots[i] = &results[i]
		}
		for _, path := range paths {
			if err := s.prefetchPath(ctx, db, m, roots, path); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *Store) prefetchPath(ctx context.Context, db orm.Querier, m *schema.Model, level []*Record, path []string) error {
	cur := m
	for _, step := range path {
		f, ok := cur.Field(step)
		if !ok || f.Kind != schema.KindForeignKey {
			return fmt.Errorf("record: prefetch %s: %s.%s is not a foreign key", m.Name, cur.Name, step)
		}
		target, ok := s.reg.Model(f.To)
		if !ok {
			return fmt.Errorf("record: prefetch %s: unknown model %s", m.Name, f.To)
		}

		var ids []any
		seen := make(map[any]bool)
		for _, r := range level {
			id := r.values[step]
			if id == nil || seen[id] {
				continue
			}
			if p, ok := r.parents[step]; ok && p.PK() == id {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		fetched, err := s.fetch(ctx, db, target, ids)
		if err != nil {
			return fmt.Errorf("record: prefetch %s.%s: %w", cur.Name, step, err)
		}
		if len(ids) > 0 {
			s.logger.Debug("prefetched parents",
				zap.String("model", cur.Name),
				zap.String("relation", step),
				zap.Int("requested", len(ids)),
				zap.Int("found", len(fetched)),
			)
		}

		var next []*Record
		for _, r := range level {
			id := r.values[step]
			if id == nil {
				continue
			}
			if p, ok := r.parents[step]; ok && p.PK() == id {
				next = append(next, p)
				continue
			}
			p := fetched[id]
			r.link(step, p)
			if p != nil {
				next = append(next, p)
			}
		}
		level, cur = next, target
	}
	return nil
}
