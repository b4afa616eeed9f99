// Package testmodels declares the models shared by the package tests.
package testmodels

import (
	"github.com/mickamy/ormfields/schema"
)

// Build declares the test models on a fresh builder and resolves them.
func Build(opts ...schema.Option) (*schema.Registry, error) {
	b := schema.NewBuilder(opts...)
	decls := []struct {
		name  string
		decls []schema.Decl
	}{
		{"Stuff", nil},
		{"TestModel1", []schema.Decl{
			schema.Text("bar", schema.Size(10)),
			schema.ManyToMany("m2mrel", "Stuff"),
		}},
		{"TestModel1Cached", []schema.Decl{
			schema.Text("bar", schema.Size(10)),
			schema.CachedManyToMany("m2mrel", "Stuff"),
		}},
		{"TestModel2", []schema.Decl{
			schema.ForeignKey("parent", "TestModel1"),
			schema.Text("bar", schema.Size(10)),
			schema.Inherited("foo", "parent", schema.From("bar"), schema.NoValidate()),
			schema.Inherited("ifoo", "parent", schema.From("bar"), schema.InheritOnly()),
		}},
		{"TestModel3", []schema.Decl{
			schema.ForeignKey("parent", "TestModel1Cached"),
			schema.Inherited("foo", "parent", schema.From("bar")),
			schema.Inherited("m2mrel", "parent"),
		}},
		{"TestModel6", []schema.Decl{
			schema.ForeignKey("parent_for_6", "TestModel1"),
			schema.Inherited("foo", "parent_for_6", schema.From("bar")),
		}},
		{"TestModel7", []schema.Decl{
			schema.ForeignKey("parent_for_7", "TestModel6"),
			schema.ForeignKey("bogus_relation", "TestModel6"),
			schema.Inherited("boo", "parent_for_7", schema.From("foo")),
		}},
		{"TestModel8", []schema.Decl{
			schema.ForeignKey("parent_for_8", "TestModel7"),
			schema.Inherited("goo", "parent_for_8", schema.From("boo")),
		}},
		{"TestModelA", []schema.Decl{schema.Text("x", schema.Size(1))}},
		{"TestModelB", []schema.Decl{schema.Text("x", schema.Size(1))}},
		{"TestModelC", []schema.Decl{
			schema.CachedManyToMany("cmtm_a", "TestModelA"),
			schema.CachedManyToMany("cmtm_b", "TestModelB"),
		}},
		{"Category", []schema.Decl{
			schema.Text("color", schema.Choices(
				schema.Choice{Value: "r", Label: "Red"},
				schema.Choice{Value: "g", Label: "Green"},
			)),
			schema.Int("rank"),
		}},
		{"Product", []schema.Decl{
			schema.ForeignKey("category", "Category"),
			schema.Text("name"),
			schema.Inherited("color", "category"),
			schema.Inherited("rank", "category"),
		}},
	}
	for _, d := range decls {
		if _, err := b.Model(d.name, d.decls...); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// MustBuild is like Build but panics on error.
func MustBuild(opts ...schema.Option) *schema.Registry {
	reg, err := Build(opts...)
	if err != nil {
		panic(err)
	}
	return reg
}
