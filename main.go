package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	_ "modernc.org/sqlite"

	"github.com/mickamy/ormfields/internal/config"
	"github.com/mickamy/ormfields/internal/decl"
	"github.com/mickamy/ormfields/orm"
	"github.com/mickamy/ormfields/schema"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "config file (optional)")
	file := flag.String("file", "", "Go file declaring the models (default $GOFILE)")
	dialect := flag.String("dialect", "", "sqlite, mysql or postgres")
	dsn := flag.String("dsn", "", "data source name used by -apply")
	apply := flag.Bool("apply", false, "create the tables in the database at -dsn")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("ormfields", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "file":
			cfg.File = *file
		case "dialect":
			cfg.Dialect = *dialect
		case "dsn":
			cfg.DSN = *dsn
		}
	})
	if cfg.File == "" {
		cfg.File = os.Getenv("GOFILE")
	}
	if cfg.File == "" {
		log.Fatal("-file is required (or run via go:generate)")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	d, err := cfg.SQLDialect()
	if err != nil {
		log.Fatal(err)
	}

	reg, err := decl.Load(cfg.File, schema.WithLogger(logger))
	if err != nil {
		log.Fatalf("load %s: %v", cfg.File, err)
	}

	stmts := reg.DDL(d)
	writeDDL(os.Stdout, stmts)
	writeReport(os.Stdout, reg)

	if !*apply {
		return
	}
	if cfg.DSN == "" {
		log.Fatal("-apply needs -dsn")
	}
	if err := applyDDL(context.Background(), cfg, d, stmts, logger); err != nil {
		log.Fatalf("apply: %v", err)
	}
	logger.Info("schema applied", zap.String("dialect", cfg.Dialect), zap.Int("statements", len(stmts)))
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err //nolint:wrapcheck // reported as is
	}
	c := zap.NewDevelopmentConfig()
	c.Level = zap.NewAtomicLevelAt(lvl)
	return c.Build() //nolint:wrapcheck // reported as is
}

func applyDDL(ctx context.Context, cfg *config.Config, d orm.Dialect, stmts []string, logger *zap.Logger) error {
	raw, err := sql.Open(cfg.DriverName(), cfg.DSN)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	db := orm.New(raw, d).Debug(orm.ZapLogger{L: logger})
	defer func() { _ = db.Close() }()

	return orm.Atomic(ctx, db, func(q orm.Querier) error {
		for _, stmt := range stmts {
			if _, err := orm.Exec(ctx, q, stmt); err != nil {
				return err //nolint:wrapcheck // orm errors carry the statement
			}
		}
		return nil
	})
}

func writeDDL(w io.Writer, stmts []string) {
	for _, stmt := range stmts {
		_, _ = fmt.Fprintf(w, "%s;\n\n", stmt)
	}
}

// writeReport lists every inherited field as SQL comments:
//
//	-- Product.label <- category.name (text)
func writeReport(w io.Writer, reg *schema.Registry) {
	var lines []string
	for _, m := range reg.Models() {
		for _, inh := range m.InheritedFields() {
			lines = append(lines, reportLine(m, inh))
		}
	}
	if len(lines) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "-- inherited fields")
	for _, l := range lines {
		_, _ = fmt.Fprintln(w, "-- "+l)
	}
}

func reportLine(m *schema.Model, inh *schema.InheritedField) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s <- %s.%s", m.Name, inh.Name, inh.Relation, inh.Target)
	switch {
	case !inh.Resolved():
		b.WriteString(" (unresolved)")
	default:
		fmt.Fprintf(&b, " (%s", inh.Source.Kind)
		if len(inh.Chain) > 1 {
			fmt.Fprintf(&b, " via %s", strings.Join(inh.Chain, schema.PathSeparator))
		}
		b.WriteString(")")
	}
	if inh.InheritOnly {
		b.WriteString(" inherit-only")
	}
	return b.String()
}
