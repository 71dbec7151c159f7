// Package modelfile reads table definitions and their change logging parameters
// from a YAML model file.
package modelfile

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cast"
	"sigs.k8s.io/yaml"

	"github.com/mickamy/verlog"
	"github.com/mickamy/verlog/internal/ident"
)

// File is the document layout of a model file.
type File struct {
	Name   string  `json:"name"`
	Schema string  `json:"schema,omitempty"`
	Tables []Table `json:"tables"`
}

type Table struct {
	Name        string                    `json:"name"`
	Schema      string                    `json:"schema,omitempty"`
	Package     string                    `json:"package,omitempty"`
	Namespace   string                    `json:"namespace,omitempty"`
	SkipSQL     bool                      `json:"skip_sql,omitempty"`
	Columns     []Column                  `json:"columns"`
	ForeignKeys []ForeignKey              `json:"foreign_keys,omitempty"`
	Behaviors   map[string]map[string]any `json:"behaviors,omitempty"`
}

type Column struct {
	Name          string `json:"name"`
	Type          string `json:"type,omitempty"`
	Size          int    `json:"size,omitempty"`
	PrimaryKey    bool   `json:"primary_key,omitempty"`
	AutoIncrement bool   `json:"auto_increment,omitempty"`
	Required      bool   `json:"required,omitempty"`
	Default       string `json:"default,omitempty"`
	PrimaryString bool   `json:"primary_string,omitempty"`
}

type ForeignKey struct {
	Name         string      `json:"name"`
	ForeignTable string      `json:"foreign_table"`
	OnDelete     string      `json:"on_delete,omitempty"`
	OnUpdate     string      `json:"on_update,omitempty"`
	References   []Reference `json:"references"`
}

type Reference struct {
	Local   string `json:"local"`
	Foreign string `json:"foreign"`
}

// Model is a loaded model file.
type Model struct {
	DB     *verlog.Database
	Params map[string]verlog.Parameters // change_logger parameters by table
}

// Build derives the log tables of the model.
func (m *Model) Build() (verlog.Schemas, error) {
	return verlog.Build(m.DB, m.Params)
}

// Load reads and parses the model file at path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("modelfile: failed to read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("modelfile: %s: %w", path, err)
	}
	return m, nil
}

// Parse builds a model from YAML. Unknown fields and behaviors are rejected.
func Parse(data []byte) (*Model, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if f.Name == "" {
		f.Name = "default"
	}
	db := verlog.NewDatabase(f.Name)
	db.Schema = f.Schema

	// Tables first so foreign keys can resolve their referenced columns.
	tables := make([]*verlog.Table, len(f.Tables))
	for i, ft := range f.Tables {
		t, err := buildTable(ft, f.Schema)
		if err != nil {
			return nil, err
		}
		if err := db.AddTable(t); err != nil {
			return nil, err
		}
		tables[i] = t
	}
	params := map[string]verlog.Parameters{}
	for i, ft := range f.Tables {
		t := tables[i]
		for _, fk := range ft.ForeignKeys {
			if err := t.AddForeignKey(buildForeignKey(fk, db)); err != nil {
				return nil, err
			}
		}
		for name, raw := range ft.Behaviors {
			if name != verlog.Behavior {
				return nil, fmt.Errorf("table %q: unknown behavior %q", t.Name, name)
			}
			p, err := parameters(raw)
			if err != nil {
				return nil, fmt.Errorf("table %q: %w", t.Name, err)
			}
			params[t.Name] = p
		}
	}
	return &Model{DB: db, Params: params}, nil
}

func buildTable(ft Table, schema string) (*verlog.Table, error) {
	parts := ident.SplitQualified(ft.Name)
	if len(parts) == 0 || len(parts) > 2 || parts[len(parts)-1] == "" {
		return nil, fmt.Errorf("invalid table name %q", ft.Name)
	}
	t := verlog.NewTable(parts[len(parts)-1])
	t.Schema = ft.Schema
	if len(parts) == 2 {
		// "schema.table" wins over the schema field
		t.Schema = parts[0]
	}
	if t.Schema == "" {
		t.Schema = schema
	}
	t.Package = ft.Package
	t.Namespace = ft.Namespace
	t.SkipSQL = ft.SkipSQL
	for _, fc := range ft.Columns {
		c := &verlog.Column{
			Name:          fc.Name,
			Type:          verlog.ColumnType(strings.ToUpper(fc.Type)),
			Size:          fc.Size,
			PrimaryKey:    fc.PrimaryKey,
			AutoIncrement: fc.AutoIncrement,
			Required:      fc.Required,
			Default:       fc.Default,
			PrimaryString: fc.PrimaryString,
		}
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func buildForeignKey(fk ForeignKey, db *verlog.Database) *verlog.ForeignKey {
	out := &verlog.ForeignKey{
		Name:         fk.Name,
		ForeignTable: fk.ForeignTable,
		OnDelete:     strings.ToUpper(fk.OnDelete),
		OnUpdate:     strings.ToUpper(fk.OnUpdate),
	}
	if ft := db.Table(fk.ForeignTable); ft != nil {
		out.ForeignSchema = ft.Schema
	}
	for _, r := range fk.References {
		out.AddReference(r.Local, r.Foreign)
	}
	return out
}

// parameters flattens YAML scalars to strings; lists become comma separated.
func parameters(raw map[string]any) (verlog.Parameters, error) {
	p := make(verlog.Parameters, len(raw))
	for k, v := range raw {
		if list, ok := v.([]any); ok {
			items, err := cast.ToStringSliceE(list)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", k, err)
			}
			p[k] = strings.Join(items, ", ")
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		p[k] = s
	}
	return p, nil
}
