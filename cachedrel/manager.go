// Package cachedrel manages many-to-many relations that mirror the primary
// keys of their related records into a set column on the owner.
package cachedrel

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/mickamy/ormfields/orm"
	"github.com/mickamy/ormfields/schema"
	"github.com/mickamy/ormfields/scope"
	"github.com/mickamy/ormfields/setfield"
)

// Owner is the record a relation belongs to.
type Owner interface {
	Keyer
	Stored(name string) any
	SetStored(name string, v any)
}

// Manager mutates one owner's relation and keeps its cache column in
// sync. Each mutation writes the join table and the cache column in one
// transaction and changes the in-memory cache only after both succeed.
//
// The cache is updated by set algebra on the owner's in-memory value.
// Concurrent writers in other processes can make it drift from the join
// table; Reload rebuilds it.
type Manager struct {
	db      orm.Querier
	model   *schema.Model
	field   *schema.Field
	owner   Owner
	key     KeyFunc
	metrics *Metrics
	logger  *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithKeyFunc replaces DefaultKey as the extractor of cached values.
func WithKeyFunc(fn KeyFunc) Option { return func(m *Manager) { m.key = fn } }

// WithMetrics counts operations in m.
func WithMetrics(mt *Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithLogger sets the logger used for mutation details.
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

// New returns the manager of the many-to-many field called field on owner,
// a record of model.
func New(db orm.Querier, model *schema.Model, field string, owner Owner, opts ...Option) (*Manager, error) {
	f, ok := model.Field(field)
	if !ok || f.Kind != schema.KindManyToMany {
		return nil, fmt.Errorf("cachedrel: %s has no many-to-many field %s", model.Name, field)
	}
	m := &Manager{
		db:     db,
		model:  model,
		field:  f,
		owner:  owner,
		key:    DefaultKey,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Field returns the relation field.
func (m *Manager) Field() *schema.Field { return m.field }

// Cache returns a copy of the cached keys. Storage is not read.
func (m *Manager) Cache() setfield.Set {
	if !m.cached() {
		return setfield.Set{}
	}
	return m.current().Clone()
}

// Add relates objs to the owner. Objects that are already related are
// skipped. objs may be records or raw primary keys.
func (m *Manager) Add(ctx context.Context, objs ...any) (err error) {
	defer func() { m.observe("add", err) }()

	ownerPK, err := m.ownerPK()
	if err != nil {
		return err
	}
	pks, keys, err := m.extract(objs)
	if err != nil {
		return err
	}
	next := m.current().Clone()
	if err := next.Add(keys...); err != nil {
		return fmt.Errorf("cachedrel: %w", err)
	}

	err = orm.Atomic(ctx, m.db, func(q orm.Querier) error {
		existing, err := m.targets(ctx, q, ownerPK)
		if err != nil {
			return err
		}
		var rows []*orm.JoinPair[int64, int64]
		for _, pk := range pks {
			if slices.Contains(existing, pk) {
				continue
			}
			existing = append(existing, pk)
			rows = append(rows, &orm.JoinPair[int64, int64]{Source: ownerPK, Target: pk})
		}
		if err := orm.Rows[int64, int64](q, m.field.Through).CreateAll(ctx, rows); err != nil {
			return fmt.Errorf("cachedrel: add to %s: %w", m.field.Through.Table, err)
		}
		return m.persist(ctx, q, ownerPK, next)
	})
	if err != nil {
		return err
	}
	m.commit(next)
	return nil
}

// Remove unrelates objs from the owner and drops exactly their keys from
// the cache.
func (m *Manager) Remove(ctx context.Context, objs ...any) (err error) {
	defer func() { m.observe("remove", err) }()

	ownerPK, err := m.ownerPK()
	if err != nil {
		return err
	}
	pks, keys, err := m.extract(objs)
	if err != nil {
		return err
	}
	if len(pks) == 0 {
		return nil
	}
	next := m.current().Clone()
	next.Discard(keys...)

	err = orm.Atomic(ctx, m.db, func(q orm.Querier) error {
		del := m.rows(q, ownerPK).Scopes(scope.In(m.qi(q, m.field.Through.TargetColumn), pks))
		if err := del.Delete(ctx); err != nil {
			return fmt.Errorf("cachedrel: remove from %s: %w", m.field.Through.Table, err)
		}
		return m.persist(ctx, q, ownerPK, next)
	})
	if err != nil {
		return err
	}
	m.commit(next)
	return nil
}

// Clear unrelates every object from the owner and empties the cache.
func (m *Manager) Clear(ctx context.Context) (err error) {
	defer func() { m.observe("clear", err) }()

	ownerPK, err := m.ownerPK()
	if err != nil {
		return err
	}
	next := setfield.Set{}
	err = orm.Atomic(ctx, m.db, func(q orm.Querier) error {
		if err := m.rows(q, ownerPK).Delete(ctx); err != nil {
			return fmt.Errorf("cachedrel: clear %s: %w", m.field.Through.Table, err)
		}
		return m.persist(ctx, q, ownerPK, next)
	})
	if err != nil {
		return err
	}
	m.commit(next)
	return nil
}

// Reload rebuilds the cache from the join table, passing each related
// primary key to the KeyFunc, and stores it.
func (m *Manager) Reload(ctx context.Context) (err error) {
	defer func() { m.observe("reload", err) }()

	ownerPK, err := m.ownerPK()
	if err != nil {
		return err
	}
	next := setfield.Set{}
	err = orm.Atomic(ctx, m.db, func(q orm.Querier) error {
		targets, err := m.targets(ctx, q, ownerPK)
		if err != nil {
			return err
		}
		for _, pk := range targets {
			k, err := m.key(pk)
			if err != nil {
				return err
			}
			if err := next.Add(k); err != nil {
				return fmt.Errorf("cachedrel: %w", err)
			}
		}
		return m.persist(ctx, q, ownerPK, next)
	})
	if err != nil {
		return err
	}
	m.commit(next)
	return nil
}

// Related returns the primary keys currently related to the owner, read
// from the join table.
func (m *Manager) Related(ctx context.Context) ([]int64, error) {
	ownerPK, err := m.ownerPK()
	if err != nil {
		return nil, err
	}
	targets, err := m.targets(ctx, m.db, ownerPK)
	if err != nil {
		return nil, err
	}
	slices.Sort(targets)
	return targets, nil
}

func (m *Manager) cached() bool { return m.field.CacheField != "" }

func (m *Manager) current() setfield.Set {
	if s, ok := m.owner.Stored(m.field.CacheField).(setfield.Set); ok && s != nil {
		return s
	}
	return setfield.Set{}
}

func (m *Manager) ownerPK() (int64, error) {
	if m.owner.PK() == nil {
		return 0, ErrUnsavedOwner
	}
	return primaryKey(m.owner)
}

// extract returns the primary key and cache key of every object.
func (m *Manager) extract(objs []any) ([]int64, []any, error) {
	pks := make([]int64, 0, len(objs))
	keys := make([]any, 0, len(objs))
	for _, o := range objs {
		pk, err := primaryKey(o)
		if err != nil {
			return nil, nil, err
		}
		k, err := m.key(o)
		if err != nil {
			return nil, nil, err
		}
		pks = append(pks, pk)
		keys = append(keys, k)
	}
	return pks, keys, nil
}

func (m *Manager) targets(ctx context.Context, q orm.Querier, ownerPK int64) ([]int64, error) {
	pairs, err := orm.QueryJoinTable[int64, int64](ctx, q, m.field.Through, []int64{ownerPK})
	if err != nil {
		return nil, fmt.Errorf("cachedrel: read %s: %w", m.field.Through.Table, err)
	}
	return orm.UniqueTargets(pairs), nil
}

func (m *Manager) rows(q orm.Querier, ownerPK int64) *orm.Query[orm.JoinPair[int64, int64]] {
	return orm.Rows[int64, int64](q, m.field.Through).
		Where(m.qi(q, m.field.Through.SourceColumn)+" = ?", ownerPK)
}

func (m *Manager) persist(ctx context.Context, q orm.Querier, ownerPK int64, next setfield.Set) error {
	if !m.cached() {
		return nil
	}
	pk := m.model.PrimaryKey().Column
	col, _ := m.model.Field(m.field.CacheField)
	err := orm.NewQuery[struct{}](q, m.model.Table, nil, pk, nil, nil, nil).
		Where(m.qi(q, pk)+" = ?", ownerPK).
		UpdateColumns(ctx, []string{col.Column}, []any{next})
	if err != nil {
		return fmt.Errorf("cachedrel: store %s: %w", m.field.CacheField, err)
	}
	return nil
}

func (m *Manager) commit(next setfield.Set) {
	if m.cached() {
		m.owner.SetStored(m.field.CacheField, next)
	}
	m.logger.Debug("cached relation updated",
		zap.String("model", m.model.Name),
		zap.String("field", m.field.Name),
		zap.Int("size", next.Len()),
	)
}

func (m *Manager) observe(op string, err error) {
	m.metrics.observe(m.model.Name, m.field.Name, op, err)
}

func (m *Manager) qi(q orm.Querier, name string) string {
	return orm.DialectOf(q).QuoteIdent(name)
}
