package orm_test

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"slices"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/mickamy/ormfields/orm"
	"github.com/mickamy/ormfields/scope"
)

// tag carries a serialized cache column next to a plain value.
type tag struct {
	ID    int64
	Label string
	Cache string
}

func scanTag(rows *sql.Rows) (tag, error) {
	var v tag
	err := rows.Scan(&v.ID, &v.Label, &v.Cache)
	return v, err
}

func tagValues(v *tag, includesPK bool) ([]string, []any) {
	if includesPK {
		return []string{"id", "label", "members_cache"}, []any{v.ID, v.Label, v.Cache}
	}
	return []string{"label", "members_cache"}, []any{v.Label, v.Cache}
}

func tags(db orm.Querier) *orm.Query[tag] {
	return orm.NewQuery[tag](db, "tags", []string{"id", "label", "members_cache"}, "id",
		scanTag, tagValues, func(v *tag, id int64) { v.ID = id })
}

var members = orm.JoinTable{Table: "tags_members", SourceColumn: "tag_id", TargetColumn: "person_id"}

type dialectSetup struct {
	name    string
	driver  string
	dsn     string
	dialect orm.Dialect
	schema  []string
}

// dialects lists the engines every test runs against. SQLite runs in
// memory; integration_test.go appends MySQL and PostgreSQL.
var dialects = []dialectSetup{
	{
		name:    "SQLite",
		driver:  "sqlite",
		dsn:     ":memory:",
		dialect: orm.SQLite,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS tags (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				label TEXT NOT NULL,
				members_cache TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS tags_members (
				tag_id INTEGER NOT NULL,
				person_id INTEGER NOT NULL,
				PRIMARY KEY (tag_id, person_id)
			)`,
		},
	},
}

func setupDB(t *testing.T, ds dialectSetup) *orm.DB {
	t.Helper()

	sqlDB, err := sql.Open(ds.driver, ds.dsn)
	if err != nil {
		t.Fatalf("open %s: %v", ds.name, err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if ds.driver == "sqlite" {
		// each connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	for _, stmt := range ds.schema {
		if _, err := sqlDB.Exec(stmt); err != nil {
			t.Fatalf("schema %s: %v", ds.name, err)
		}
	}
	for _, table := range []string{"tags", "tags_members"} {
		if _, err := sqlDB.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("truncate %s: %v", ds.name, err)
		}
	}
	return orm.New(sqlDB, ds.dialect)
}

func TestRoundTrip(t *testing.T) {
	for _, ds := range dialects {
		t.Run(ds.name, func(t *testing.T) {
			db := setupDB(t, ds)
			ctx := t.Context()

			v := &tag{Label: "go", Cache: `{"i":[1]}`}
			if err := tags(db).Create(ctx, v); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if v.ID == 0 {
				t.Fatal("expected ID to be set after Create")
			}

			byID := tags(db).Where("id = ?", v.ID)
			got, err := byID.First(ctx)
			if err != nil {
				t.Fatalf("First: %v", err)
			}
			if got != *v {
				t.Errorf("First = %+v, want %+v", got, *v)
			}

			v.Label = "golang"
			if err := tags(db).Update(ctx, v); err != nil {
				t.Fatalf("Update: %v", err)
			}
			if err := byID.UpdateColumns(ctx, []string{"members_cache"}, []any{`{"i":[1,2]}`}); err != nil {
				t.Fatalf("UpdateColumns: %v", err)
			}
			got, err = byID.First(ctx)
			if err != nil {
				t.Fatalf("First after update: %v", err)
			}
			if got.Label != "golang" || got.Cache != `{"i":[1,2]}` {
				t.Errorf("got %+v", got)
			}

			if err := byID.Delete(ctx); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := byID.First(ctx); !errors.Is(err, orm.ErrNotFound) {
				t.Errorf("expected ErrNotFound after Delete, got %v", err)
			}
		})
	}
}

func TestCreateAllAndCount(t *testing.T) {
	for _, ds := range dialects {
		t.Run(ds.name, func(t *testing.T) {
			db := setupDB(t, ds)
			ctx := t.Context()

			items := []*tag{{Label: "a"}, {Label: "b"}, {Label: "c"}}
			if err := tags(db).CreateAll(ctx, items); err != nil {
				t.Fatalf("CreateAll: %v", err)
			}
			for i, v := range items {
				if v.ID == 0 {
					t.Errorf("items[%d].ID = 0, want non-zero", i)
				}
			}

			all, err := tags(db).OrderBy("id").All(ctx)
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			var labels []string
			for _, v := range all {
				labels = append(labels, v.Label)
			}
			if !reflect.DeepEqual(labels, []string{"a", "b", "c"}) {
				t.Errorf("labels = %v", labels)
			}

			n, err := tags(db).Scopes(scope.In("id", []int64{items[0].ID, items[2].ID})).Count(ctx)
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			if n != 2 {
				t.Errorf("Count = %d, want 2", n)
			}
			ok, err := tags(db).Where("label = ?", "z").Exists(ctx)
			if err != nil || ok {
				t.Errorf("Exists = %v, %v; want false", ok, err)
			}
		})
	}
}

func TestJoinTableRoundTrip(t *testing.T) {
	for _, ds := range dialects {
		t.Run(ds.name, func(t *testing.T) {
			db := setupDB(t, ds)
			ctx := t.Context()

			pairs := []*orm.JoinPair[int64, int64]{
				{Source: 1, Target: 10},
				{Source: 1, Target: 11},
				{Source: 2, Target: 10},
			}
			if err := orm.Rows[int64, int64](db, members).CreateAll(ctx, pairs); err != nil {
				t.Fatalf("CreateAll: %v", err)
			}

			got, err := orm.QueryJoinTable[int64, int64](ctx, db, members, []int64{1, 2})
			if err != nil {
				t.Fatalf("QueryJoinTable: %v", err)
			}
			targets := orm.UniqueTargets(got)
			slices.Sort(targets)
			if !reflect.DeepEqual(targets, []int64{10, 11}) {
				t.Errorf("targets = %v", targets)
			}

			err = orm.Rows[int64, int64](db, members).
				Where("tag_id = ?", 1).
				Scopes(scope.In("person_id", []int64{10})).
				Delete(ctx)
			if err != nil {
				t.Fatalf("Delete: %v", err)
			}
			n, err := orm.Rows[int64, int64](db, members).Count(ctx)
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			if n != 2 {
				t.Errorf("Count = %d, want 2", n)
			}

			none, err := orm.QueryJoinTable[int64, int64](ctx, db, members, nil)
			if err != nil || none != nil {
				t.Errorf("QueryJoinTable(nil) = %v, %v", none, err)
			}
		})
	}
}

func TestAtomic(t *testing.T) {
	for _, ds := range dialects {
		t.Run(ds.name, func(t *testing.T) {
			db := setupDB(t, ds)
			ctx := t.Context()

			errBoom := errors.New("boom")
			err := orm.Atomic(ctx, db, func(q orm.Querier) error {
				if _, ok := q.(*orm.Tx); !ok {
					t.Errorf("Atomic handed %T, want *orm.Tx", q)
				}
				if err := tags(q).Create(ctx, &tag{Label: "rolled back"}); err != nil {
					return err
				}
				return errBoom
			})
			if !errors.Is(err, errBoom) {
				t.Fatalf("Atomic error = %v, want errBoom", err)
			}
			if ok, _ := tags(db).Where("label = ?", "rolled back").Exists(ctx); ok {
				t.Error("row survived a rolled back Atomic block")
			}

			// An open transaction stays in charge.
			err = db.Transaction(ctx, func(tx *orm.Tx) error {
				return orm.Atomic(ctx, tx, func(q orm.Querier) error {
					if q != orm.Querier(tx) {
						t.Errorf("Atomic handed %T, want the caller's tx", q)
					}
					return tags(q).Create(ctx, &tag{Label: "kept"})
				})
			})
			if err != nil {
				t.Fatalf("Transaction: %v", err)
			}
			if ok, _ := tags(db).Where("label = ?", "kept").Exists(ctx); !ok {
				t.Error("committed row is missing")
			}
		})
	}
}

type recordingLogger struct{ queries []string }

func (l *recordingLogger) Log(_ context.Context, query string, _ ...any) {
	l.queries = append(l.queries, query)
}

func TestDebug(t *testing.T) {
	for _, ds := range dialects {
		t.Run(ds.name, func(t *testing.T) {
			db := setupDB(t, ds)
			ctx := t.Context()

			l := &recordingLogger{}
			debug := db.Debug(l)
			if err := tags(debug).Create(ctx, &tag{Label: "x"}); err != nil {
				t.Fatalf("Create: %v", err)
			}
			err := debug.Transaction(ctx, func(tx *orm.Tx) error {
				_, err := tags(tx).Count(ctx)
				return err
			})
			if err != nil {
				t.Fatalf("Transaction: %v", err)
			}
			if _, err := tags(db).Count(ctx); err != nil {
				t.Fatalf("Count: %v", err)
			}
			if len(l.queries) != 2 {
				t.Errorf("logged %d queries, want 2: %v", len(l.queries), l.queries)
			}
		})
	}
}

func TestExecRebinds(t *testing.T) {
	t.Parallel()

	tq := orm.NewTestQuerier(orm.PostgreSQL)
	if _, err := orm.Exec(t.Context(), tq, "DELETE FROM tags WHERE id = ? OR id = ?", 1, 2); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	want := "DELETE FROM tags WHERE id = $1 OR id = $2"
	if got := tq.LastQuery(); got.SQL != want {
		t.Errorf("SQL = %q, want %q", got.SQL, want)
	}
	if d := orm.DialectOf(tq); d != orm.PostgreSQL {
		t.Errorf("DialectOf = %v", d)
	}
}
