package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mickamy/ormfields/cachedrel"
	"github.com/mickamy/ormfields/inherit"
	"github.com/mickamy/ormfields/lookup"
	"github.com/mickamy/ormfields/orm"
	"github.com/mickamy/ormfields/schema"
	"github.com/mickamy/ormfields/scope"
)

// Store persists records of the models of one registry.
type Store struct {
	db      orm.Querier
	reg     *schema.Registry
	logger  *zap.Logger
	metrics *cachedrel.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for saves, deletes and prefetches.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

// WithMetrics counts the operations of relation managers created by the
// store.
func WithMetrics(m *cachedrel.Metrics) Option { return func(s *Store) { s.metrics = m } }

// NewStore returns a Store over db for the models of reg.
func NewStore(db orm.Querier, reg *schema.Registry, opts ...Option) *Store {
	s := &Store{db: db, reg: reg, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Registry returns the models the store knows.
func (s *Store) Registry() *schema.Registry { return s.reg }

// WithTx returns a copy of the store that runs every statement on tx.
func (s *Store) WithTx(tx *orm.Tx) *Store {
	c := *s
	c.db = tx
	return &c
}

// Save inserts an unsaved record or updates a stored one. Keys of linked
// parents are copied into their foreign keys first.
func (s *Store) Save(ctx context.Context, r *Record) error {
	if err := s.check(r.model); err != nil {
		return err
	}
	if err := r.syncKeys(); err != nil {
		return err
	}
	q := s.table(r.model)
	var err error
	switch {
	case r.persisted:
		err = q.Update(ctx, r)
	case r.PK() != nil:
		// explicit key: insert it verbatim
		err = s.rawTable(r.model).Create(ctx, r)
	default:
		err = q.Create(ctx, r)
	}
	if err != nil {
		return fmt.Errorf("record: save %s: %w", r, err)
	}
	r.persisted = true
	r.store = s
	s.logger.Debug("record saved", zap.String("model", r.model.Name), zap.Any("pk", r.PK()))
	return nil
}

// Delete removes a stored record together with its own join table rows.
// The record keeps its values but loses its primary key.
func (s *Store) Delete(ctx context.Context, r *Record) error {
	if err := s.check(r.model); err != nil {
		return err
	}
	if !r.persisted {
		return fmt.Errorf("%w: cannot delete %s", ErrUnsaved, r)
	}
	pk := r.PK()
	err := orm.Atomic(ctx, s.db, func(q orm.Querier) error {
		qi := orm.DialectOf(q).QuoteIdent
		for _, f := range r.model.ManyToMany() {
			err := orm.Rows[int64, int64](q, f.Through).
				Where(qi(f.Through.SourceColumn)+" = ?", pk).
				Delete(ctx)
			if err != nil {
				return err
			}
		}
		return s.table(r.model).WithDB(q).
			Where(qi(r.model.PrimaryKey().Column)+" = ?", pk).
			Delete(ctx)
	})
	if err != nil {
		return fmt.Errorf("record: delete %s: %w", r, err)
	}
	s.logger.Debug("record deleted", zap.String("model", r.model.Name), zap.Any("pk", pk))
	r.values[r.model.PrimaryKey().Name] = nil
	r.persisted = false
	return nil
}

// Get loads the record of m whose primary key is pk. It returns an error
// wrapping orm.ErrNotFound when there is none.
func (s *Store) Get(ctx context.Context, m *schema.Model, pk any) (*Record, error) {
	r, err := s.Objects(m).Filter(lookup.C(m.PrimaryKey().Name, pk)).First(ctx)
	if err != nil {
		return nil, fmt.Errorf("record: get %s %v: %w", m.Name, pk, err)
	}
	return r, nil
}

// Refresh reloads the stored values of r and drops its linked parents.
func (s *Store) Refresh(ctx context.Context, r *Record) error {
	if !r.persisted {
		return fmt.Errorf("%w: cannot refresh %s", ErrUnsaved, r)
	}
	fresh, err := s.Get(ctx, r.model, r.PK())
	if err != nil {
		return err
	}
	*r = *fresh
	return nil
}

// Objects returns a query set over every record of m.
func (s *Store) Objects(m *schema.Model) *QuerySet {
	return &QuerySet{store: s, model: m, err: s.check(m)}
}

// Relation returns the manager of a many-to-many relation of r. An
// inherited many-to-many resolves to the parent's relation while it is
// inherited and to the record's own relation otherwise.
func (s *Store) Relation(r *Record, name string) (*cachedrel.Manager, error) {
	if f, ok := r.model.Inherited(name); ok {
		if f.Value == nil || f.Value.Kind != schema.KindManyToMany {
			return nil, fmt.Errorf("%w: %s.%s is not a many-to-many relation", ErrUnknownField, r.model.Name, name)
		}
		if inherit.Inherited(r, f) {
			p, err := r.Related(f.Relation)
			if err != nil && !errors.Is(err, inherit.ErrParentMissing) {
				return nil, err
			}
			if p != nil {
				return s.Relation(p, f.Target)
			}
		}
		name = f.Value.Name
	}
	return cachedrel.New(s.db, r.model, name, r,
		cachedrel.WithMetrics(s.metrics),
		cachedrel.WithLogger(s.logger),
	)
}

func (s *Store) check(m *schema.Model) error {
	if reg, ok := s.reg.Model(m.Name); !ok || reg != m {
		return fmt.Errorf("record: model %s is not part of the store's registry", m.Name)
	}
	return nil
}

// table returns the query of m with an auto-generated primary key.
func (s *Store) table(m *schema.Model) *orm.Query[Record] {
	return orm.NewQuery[Record](s.db, m.Table, m.ColumnNames(), m.PrimaryKey().Column,
		s.scanner(m), columnValues(m), setPK(m))
}

// rawTable is table for inserts that carry their own primary key.
func (s *Store) rawTable(m *schema.Model) *orm.Query[Record] {
	return orm.NewQuery[Record](s.db, m.Table, m.ColumnNames(), m.PrimaryKey().Column,
		s.scanner(m), columnValues(m), nil)
}

func (s *Store) scanner(m *schema.Model) orm.ScanFunc[Record] {
	byColumn := make(map[string]*schema.Field)
	for _, f := range m.Columns() {
		byColumn[f.Column] = f
	}
	return func(rows *sql.Rows) (Record, error) {
		cols, err := rows.Columns()
		if err != nil {
			return Record{}, err //nolint:wrapcheck // pass through
		}
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return Record{}, err //nolint:wrapcheck // pass through
		}
		r := blank(m)
		for i, col := range cols {
			f, ok := byColumn[col]
			if !ok {
				continue
			}
			v, err := f.Normalize(raw[i])
			if err != nil {
				return Record{}, fmt.Errorf("record: scan %s.%s: %w", m.Name, f.Name, err)
			}
			r.values[f.Name] = v
		}
		r.store = s
		r.persisted = true
		return *r, nil
	}
}

func columnValues(m *schema.Model) orm.ColumnValueFunc[Record] {
	return func(r *Record, includesPK bool) ([]string, []any) {
		var cols []string
		var vals []any
		for _, f := range m.Columns() {
			if f.Primary && !includesPK {
				continue
			}
			cols = append(cols, f.Column)
			vals = append(vals, r.values[f.Name])
		}
		return cols, vals
	}
}

func setPK(m *schema.Model) orm.SetPKFunc[Record] {
	return func(r *Record, id int64) { r.values[m.PrimaryKey().Name] = id }
}

// fetch loads the records of m whose primary keys are ids.
func (s *Store) fetch(ctx context.Context, db orm.Querier, m *schema.Model, ids []any) (map[any]*Record, error) {
	out := make(map[any]*Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	pk := m.PrimaryKey()
	rows, err := s.table(m).WithDB(db).
		Scopes(scope.In(orm.DialectOf(db).QuoteIdent(pk.Column), ids)).
		All(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck // pass through
	}
	for i := range rows {
		r := &rows[i]
		out[r.PK()] = r
	}
	return out, nil
}
