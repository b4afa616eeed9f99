package schema

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/mickamy/ormfields/internal/naming"
)

// Builder collects model declarations and resolves them into a Registry.
// Models may refer to models declared later; references are resolved by
// Build.
type Builder struct {
	logger *zap.Logger
	models map[string]*Model
	order  []*Model
	built  bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger that receives registration details.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder returns an empty Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		logger: zap.NewNop(),
		models: make(map[string]*Model),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Model declares a model. Checks that need only the model itself (the
// parent relation of an inherited field exists and is a foreign key) run
// here; everything that depends on other models runs in Build.
func (b *Builder) Model(name string, decls ...Decl) (*Model, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	if _, ok := b.models[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, name)
	}
	m := newModel(name)
	sorted := slices.Clone(decls)
	slices.SortStableFunc(sorted, func(a, b Decl) int { return cmp.Compare(a.stage(), b.stage()) })
	for _, d := range sorted {
		if err := d.contribute(m); err != nil {
			return nil, err
		}
	}
	b.models[name] = m
	b.order = append(b.order, m)
	return m, nil
}

// Build resolves every relation and inherited field and returns the
// registry. The builder cannot be used afterwards.
func (b *Builder) Build() (*Registry, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	for _, m := range b.order {
		for _, f := range m.fields {
			if !f.IsRelation() {
				continue
			}
			if _, ok := b.models[f.To]; !ok {
				return nil, &UnknownModelError{Model: m.Name, Field: f.Name, To: f.To}
			}
		}
	}
	for _, m := range b.order {
		for _, inh := range m.inherited {
			if err := b.resolve(m, inh); err != nil {
				return nil, err
			}
		}
		b.computePrefetch(m)
	}
	b.built = true

	reg := &Registry{models: b.models, order: b.order}
	for _, m := range b.order {
		if !m.HasInherited() {
			continue
		}
		b.logger.Debug("inherited fields registered",
			zap.String("model", m.Name),
			zap.Any("inheritance", m.inheritance),
			zap.Strings("prefetch", m.Prefetch()),
		)
	}
	return reg, nil
}

type hop struct {
	model string
	field string
}

// resolution carries the state of following one inherited field to the
// concrete field it reads.
type resolution struct {
	owner    *Model
	field    *InheritedField
	validate bool
	chain    []string
	seen     map[hop]bool
}

func (b *Builder) resolve(m *Model, inh *InheritedField) error {
	r := &resolution{
		owner:    m,
		field:    inh,
		validate: inh.Validate,
		seen:     map[hop]bool{{m.Name, inh.Name}: true},
	}
	src, err := b.findInParent(r, m, inh.Relation, inh.Target)
	if err != nil {
		return err
	}
	inh.Source = src
	inh.Chain = r.chain
	if inh.InheritOnly {
		return nil
	}

	name := naming.InheritValue(inh.Name)
	if src != nil {
		inh.Value = src.clone(name, m)
	} else {
		inh.Value = &Field{Name: name, Column: name, Kind: KindAny, Null: true, Editable: true}
	}
	return m.insertAfter(inh.Flag.Name, inh.Value)
}

func (b *Builder) findInParent(r *resolution, m *Model, relation, target string) (*Field, error) {
	rel, ok := m.byName[relation]
	if !ok {
		if !r.validate {
			return nil, nil
		}
		return nil, r.fail(ErrMissingRelation, m.Name, relation, target, 0)
	}
	if rel.Kind != KindForeignKey {
		if !r.validate {
			return nil, nil
		}
		return nil, r.fail(ErrNotRelation, m.Name, relation, target, rel.Kind)
	}
	r.chain = append(r.chain, relation)
	return b.findOnModel(r, b.models[rel.To], target)
}

func (b *Builder) findOnModel(r *resolution, m *Model, target string) (*Field, error) {
	if f, ok := m.byName[target]; ok {
		return f, nil
	}
	inh, ok := m.inhByName[target]
	if !ok {
		if !r.validate {
			return nil, nil
		}
		return nil, r.fail(ErrMissingTarget, m.Name, "", target, 0)
	}
	key := hop{m.Name, target}
	if r.seen[key] {
		if !r.validate {
			return nil, nil
		}
		return nil, r.fail(ErrCyclicInheritance, m.Name, inh.Relation, target, 0)
	}
	r.seen[key] = true
	return b.findInParent(r, m, inh.Relation, inh.Target)
}

func (r *resolution) fail(err error, model, relation, target string, kind Kind) error {
	return &ValidationError{
		Err:      err,
		Owner:    r.owner.Name,
		Field:    r.field.Name,
		Model:    model,
		Relation: relation,
		Target:   target,
		Kind:     kind,
		Chain:    slices.Clone(r.chain),
	}
}

// computePrefetch stores the distinct relation chains of m's inherited
// fields, dropping chains that are a prefix of a longer one.
func (b *Builder) computePrefetch(m *Model) {
	joined := make(map[string][]string)
	for _, inh := range m.inherited {
		if len(inh.Chain) == 0 {
			continue
		}
		joined[strings.Join(inh.Chain, PathSeparator)] = inh.Chain
	}
	keys := make([]string, 0, len(joined))
	for k := range joined {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	m.prefetch = m.prefetch[:0]
	for _, k := range keys {
		covered := slices.ContainsFunc(keys, func(o string) bool {
			return o != k && strings.HasPrefix(o, k+PathSeparator)
		})
		if !covered {
			m.prefetch = append(m.prefetch, joined[k])
		}
	}
}
