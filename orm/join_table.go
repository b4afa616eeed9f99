package orm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// JoinPair holds a source and target pair read from a join table.
type JoinPair[S, T comparable] struct {
	Source S
	Target T
}

// JoinTable describes a many-to-many link table.
type JoinTable struct {
	Table        string
	SourceColumn string
	TargetColumn string
}

// Rows returns a Query over the join table that inserts and deletes
// JoinPair rows. The table has no auto-generated key.
func Rows[S, T comparable](db Querier, jt JoinTable) *Query[JoinPair[S, T]] {
	return NewQuery[JoinPair[S, T]](
		db,
		jt.Table,
		[]string{jt.SourceColumn, jt.TargetColumn},
		"",
		scanJoinPair[S, T],
		func(p *JoinPair[S, T], _ bool) ([]string, []any) {
			return []string{jt.SourceColumn, jt.TargetColumn}, []any{p.Source, p.Target}
		},
		nil,
	)
}

func scanJoinPair[S, T comparable](rows *sql.Rows) (JoinPair[S, T], error) {
	var p JoinPair[S, T]
	err := rows.Scan(&p.Source, &p.Target)
	return p, err //nolint:wrapcheck // pass through
}

// QueryJoinTable reads (sourceCol, targetCol) rows from the given join table
// where sourceCol IN (sourceIDs). It returns a slice of JoinPair.
func QueryJoinTable[S, T comparable](
	ctx context.Context, db Querier, jt JoinTable, sourceIDs []S,
) ([]JoinPair[S, T], error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	d := db.dialect()
	qi := d.QuoteIdent

	placeholders := make([]string, len(sourceIDs))
	args := make([]any, len(sourceIDs))
	for i, id := range sourceIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		"SELECT %s, %s FROM %s WHERE %s IN (%s)",
		qi(jt.SourceColumn), qi(jt.TargetColumn), qi(jt.Table), qi(jt.SourceColumn),
		strings.Join(placeholders, ", "),
	)

	rows, err := db.QueryContext(ctx, rebind(d, query), args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	defer func() { _ = rows.Close() }()

	var pairs []JoinPair[S, T]
	for rows.Next() {
		p, err := scanJoinPair[S, T](rows)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err() //nolint:wrapcheck // pass through
}

// UniqueTargets extracts deduplicated target values from a slice of JoinPair.
func UniqueTargets[S, T comparable](pairs []JoinPair[S, T]) []T {
	seen := make(map[T]struct{}, len(pairs))
	result := make([]T, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p.Target]; !ok {
			seen[p.Target] = struct{}{}
			result = append(result, p.Target)
		}
	}
	return result
}
