// Package decl reads model declarations from Go source. Every struct with
// at least one mapped field becomes a model; struct tags select the field
// kind:
//
//	Name     string    `db:"name,size=64,null,default=x"`
//	Parent   *Category `rel:"belongs_to"`
//	Tags     []Tag     `rel:"many_to_many,cached"`
//	Label    string    `inherit:"parent.name"`
//	Rank     int       `inherit:"parent,only"`
//
// A method TableName returning a string literal overrides the table name.
package decl

import (
	"cmp"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strconv"
	"strings"

	"github.com/mickamy/ormfields/internal/naming"
	"github.com/mickamy/ormfields/schema"
)

// ErrUnsupported is returned for fields whose Go type or tag cannot be
// mapped to a schema declaration.
var ErrUnsupported = errors.New("decl: unsupported field")

// Relation kinds accepted by the rel tag.
const (
	BelongsTo  = "belongs_to"
	ManyToMany = "many_to_many"
)

// FieldInfo holds parsed metadata for one struct field.
type FieldInfo struct {
	Name       string // Go field name, e.g. "Parent"
	Column     string // schema field name, e.g. "parent"
	GoType     string // Go type as string, e.g. "*Category"
	PrimaryKey bool
	Size       int
	Null       bool
	Default    string // raw default, empty when unset
	Rel        string // BelongsTo, ManyToMany or empty
	To         string // related model
	Cached     bool
	Inherit    *InheritInfo
}

// InheritInfo holds the options of an inherit tag.
type InheritInfo struct {
	Relation   string
	Target     string
	Only       bool
	NoValidate bool
}

// StructInfo holds parsed metadata for one model struct.
type StructInfo struct {
	Name      string
	Package   string
	Fields    []FieldInfo
	TableName string // from a TableName method, empty when absent
}

// Parse reads the Go file at path and returns StructInfo for every struct
// that has at least one mapped field, in source order.
func Parse(filePath string) ([]*StructInfo, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}

	pkg := file.Name.Name
	tables := tableNames(file)
	var infos []*StructInfo
	var perr error

	ast.Inspect(file, func(n ast.Node) bool {
		if perr != nil {
			return false
		}
		ts, ok := n.(*ast.TypeSpec)
		if !ok {
			return true
		}
		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			return true
		}

		fields, err := parseStructFields(st)
		if err != nil {
			perr = fmt.Errorf("%s: %w", ts.Name.Name, err)
			return false
		}
		if len(fields) == 0 {
			return true
		}
		infos = append(infos, &StructInfo{
			Name:      ts.Name.Name,
			Package:   pkg,
			Fields:    fields,
			TableName: tables[ts.Name.Name],
		})
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return infos, nil
}

func parseStructFields(st *ast.StructType) ([]FieldInfo, error) {
	fields := make([]FieldInfo, 0, len(st.Fields.List))
	for _, field := range st.Fields.List {
		fi, skip, err := parseField(field)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		fields = append(fields, fi)
	}
	return fields, nil
}

func parseField(field *ast.Field) (FieldInfo, bool, error) {
	if len(field.Names) == 0 || !field.Names[0].IsExported() {
		return FieldInfo{}, true, nil
	}

	name := field.Names[0].Name
	fi := FieldInfo{
		Name:       name,
		Column:     naming.CamelToSnake(name),
		GoType:     typeToString(field.Type),
		PrimaryKey: name == "ID",
	}
	if field.Tag == nil {
		return fi, false, nil
	}
	tag := reflect.StructTag(strings.Trim(field.Tag.Value, "`"))

	if dbTag, ok := tag.Lookup("db"); ok {
		if dbTag == "-" {
			return FieldInfo{}, true, nil
		}
		parts := strings.Split(dbTag, ",")
		if parts[0] != "" {
			fi.Column = parts[0]
		}
		for _, opt := range parts[1:] {
			if err := fi.applyOption(opt); err != nil {
				return FieldInfo{}, false, err
			}
		}
	}

	if relTag, ok := tag.Lookup("rel"); ok {
		if err := fi.parseRel(relTag); err != nil {
			return FieldInfo{}, false, err
		}
	}

	if inhTag, ok := tag.Lookup("inherit"); ok {
		inh, err := parseInherit(inhTag)
		if err != nil {
			return FieldInfo{}, false, fmt.Errorf("%s: %w", name, err)
		}
		inh.Target = cmp.Or(inh.Target, fi.Column)
		fi.Inherit = inh
	}
	return fi, false, nil
}

func (fi *FieldInfo) applyOption(opt string) error {
	key, val, _ := strings.Cut(opt, "=")
	switch key {
	case "primaryKey":
		fi.PrimaryKey = true
	case "null":
		fi.Null = true
	case "size":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s: bad size %q", ErrUnsupported, fi.Name, val)
		}
		fi.Size = n
	case "default":
		fi.Default = val
	default:
		return fmt.Errorf("%w: %s: unknown db option %q", ErrUnsupported, fi.Name, opt)
	}
	return nil
}

// parseRel reads "belongs_to" or "many_to_many[,cached][,model:Name]".
func (fi *FieldInfo) parseRel(tag string) error {
	parts := strings.Split(tag, ",")
	fi.Rel = parts[0]
	switch fi.Rel {
	case BelongsTo, ManyToMany:
	default:
		return fmt.Errorf("%w: %s: unknown relation %q", ErrUnsupported, fi.Name, fi.Rel)
	}
	fi.To = elemType(fi.GoType)
	for _, opt := range parts[1:] {
		key, val, _ := strings.Cut(opt, ":")
		switch key {
		case "cached":
			fi.Cached = true
		case "model":
			fi.To = val
		default:
			return fmt.Errorf("%w: %s: unknown relation option %q", ErrUnsupported, fi.Name, opt)
		}
	}
	if fi.Cached && fi.Rel != ManyToMany {
		return fmt.Errorf("%w: %s: only many_to_many relations can be cached", ErrUnsupported, fi.Name)
	}
	return nil
}

// parseInherit reads "relation[.target][,only][,novalidate]".
func parseInherit(tag string) (*InheritInfo, error) {
	parts := strings.Split(tag, ",")
	relation, target, _ := strings.Cut(parts[0], ".")
	if relation == "" {
		return nil, fmt.Errorf("%w: inherit tag needs a relation", ErrUnsupported)
	}
	inh := &InheritInfo{Relation: relation, Target: target}
	for _, opt := range parts[1:] {
		switch opt {
		case "only":
			inh.Only = true
		case "novalidate":
			inh.NoValidate = true
		default:
			return nil, fmt.Errorf("%w: unknown inherit option %q", ErrUnsupported, opt)
		}
	}
	return inh, nil
}

// Decls converts the struct into schema declarations. The primary key is
// implicit in every model and must be the column id.
func (s *StructInfo) Decls() ([]schema.Decl, error) {
	var decls []schema.Decl
	if s.TableName != "" {
		decls = append(decls, schema.Table(s.TableName))
	}
	for _, f := range s.Fields {
		if f.PrimaryKey {
			if f.Column != "id" {
				return nil, fmt.Errorf("%w: %s.%s: primary key column must be id", ErrUnsupported, s.Name, f.Name)
			}
			continue
		}
		d, err := f.decl()
		if err != nil {
			return nil, fmt.Errorf("%s.%w", s.Name, err)
		}
		decls = append(decls, d)
	}
	return decls, nil
}

func (fi FieldInfo) decl() (schema.Decl, error) {
	if fi.Inherit != nil {
		var opts []schema.InheritOption
		if fi.Inherit.Target != fi.Column {
			opts = append(opts, schema.From(fi.Inherit.Target))
		}
		if fi.Inherit.Only {
			opts = append(opts, schema.InheritOnly())
		}
		if fi.Inherit.NoValidate {
			opts = append(opts, schema.NoValidate())
		}
		return schema.Inherited(fi.Column, fi.Inherit.Relation, opts...), nil
	}

	var opts []schema.FieldOption
	if fi.Size > 0 {
		opts = append(opts, schema.Size(fi.Size))
	}
	if fi.Default != "" {
		opts = append(opts, schema.Default(fi.Default))
	}

	switch fi.Rel {
	case BelongsTo:
		return schema.ForeignKey(strings.TrimSuffix(fi.Column, "_id"), fi.To, opts...), nil
	case ManyToMany:
		if fi.Cached {
			return schema.CachedManyToMany(fi.Column, fi.To, opts...), nil
		}
		return schema.ManyToMany(fi.Column, fi.To, opts...), nil
	}

	base, pointer := strings.CutPrefix(fi.GoType, "*")
	if pointer || fi.Null {
		opts = append(opts, schema.Null())
	}
	switch base {
	case "string":
		return schema.Text(fi.Column, opts...), nil
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64":
		return schema.Int(fi.Column, opts...), nil
	case "bool":
		return schema.Bool(fi.Column, opts...), nil
	case "float32", "float64":
		return schema.Float(fi.Column, opts...), nil
	default:
		return nil, fmt.Errorf("%s: %w: type %s", fi.Name, ErrUnsupported, fi.GoType)
	}
}

// Declare adds every struct to b as a model named after the struct.
func Declare(b *schema.Builder, infos []*StructInfo) error {
	for _, s := range infos {
		decls, err := s.Decls()
		if err != nil {
			return err
		}
		if _, err := b.Model(s.Name, decls...); err != nil {
			return fmt.Errorf("declare %s: %w", s.Name, err)
		}
	}
	return nil
}

// Load parses filePath and builds a registry of its models.
func Load(filePath string, opts ...schema.Option) (*schema.Registry, error) {
	infos, err := Parse(filePath)
	if err != nil {
		return nil, err
	}
	b := schema.NewBuilder(opts...)
	if err := Declare(b, infos); err != nil {
		return nil, err
	}
	return b.Build() //nolint:wrapcheck // schema errors carry their own context
}

// tableNames collects the string literals returned by TableName methods.
func tableNames(file *ast.File) map[string]string {
	out := make(map[string]string)
	for _, d := range file.Decls {
		fn, ok := d.(*ast.FuncDecl)
		if !ok || fn.Name.Name != "TableName" || fn.Recv == nil || len(fn.Recv.List) != 1 || fn.Body == nil {
			continue
		}
		if len(fn.Body.List) != 1 {
			continue
		}
		ret, ok := fn.Body.List[0].(*ast.ReturnStmt)
		if !ok || len(ret.Results) != 1 {
			continue
		}
		lit, ok := ret.Results[0].(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			continue
		}
		name, err := strconv.Unquote(lit.Value)
		if err != nil {
			continue
		}
		out[elemType(typeToString(fn.Recv.List[0].Type))] = name
	}
	return out
}

// elemType strips pointers and slices: "[]*Tag" → "Tag".
func elemType(goType string) string {
	for {
		switch {
		case strings.HasPrefix(goType, "*"):
			goType = goType[1:]
		case strings.HasPrefix(goType, "[]"):
			goType = goType[2:]
		default:
			return goType
		}
	}
}

func typeToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return typeToString(t.X) + "." + t.Sel.Name
	case *ast.StarExpr:
		return "*" + typeToString(t.X)
	case *ast.ArrayType:
		if t.Len == nil {
			return "[]" + typeToString(t.Elt)
		}
		return fmt.Sprintf("[%s]%s", typeToString(t.Len), typeToString(t.Elt))
	case *ast.MapType:
		return "map[" + typeToString(t.Key) + "]" + typeToString(t.Value)
	default:
		return fmt.Sprintf("%T", expr)
	}
}
