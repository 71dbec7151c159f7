package verlog

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
)

// TagName is the struct tag read by TableFromStruct.
const TagName = "verlog"

// TableNamer provides a custom table name for a model.
type TableNamer interface {
	TableName() string
}

var (
	tableNamerType = reflect.TypeOf((*TableNamer)(nil)).Elem()
	timeType       = reflect.TypeOf(time.Time{})
	uuidType       = reflect.TypeOf(uuid.UUID{})
)

// TableFromStruct builds a table definition from a struct value or pointer.
//
// Each exported field becomes a column named after its tag or, without one, the
// snake_cased field name. Tag options: pk, autoincrement, required, primarystring,
// size=N, type=T, default=LITERAL. A tag of "-" skips the field.
func TableFromStruct(target any) (*Table, error) {
	name, err := resolveTableName(target)
	if err != nil {
		return nil, err
	}
	typ := reflect.TypeOf(target)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	t := NewTable(name)
	if err := addStructColumns(t, typ); err != nil {
		return nil, err
	}
	if len(t.Columns()) == 0 {
		return nil, fmt.Errorf("verlog: %v has no exported fields", typ)
	}
	return t, nil
}

func addStructColumns(t *Table, typ reflect.Type) error {
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get(TagName) == "" {
			if err := addStructColumns(t, f.Type); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get(TagName)
		if tag == "-" {
			continue
		}
		c, err := columnFromField(f, tag)
		if err != nil {
			return err
		}
		if err := t.AddColumn(c); err != nil {
			return err
		}
	}
	return nil
}

func columnFromField(f reflect.StructField, tag string) (*Column, error) {
	parts := strings.Split(tag, ",")
	c := &Column{Name: strings.TrimSpace(parts[0])}
	if c.Name == "" {
		c.Name = toSnakeCase(f.Name)
	}
	c.Type = columnTypeOf(f.Type)
	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		key, val, _ := strings.Cut(opt, "=")
		switch strings.ToLower(key) {
		case "":
		case "pk":
			c.PrimaryKey = true
		case "autoincrement":
			c.AutoIncrement = true
		case "required":
			c.Required = true
		case "primarystring":
			c.PrimaryString = true
		case "size":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("verlog: field %s: invalid size %q", f.Name, val)
			}
			c.Size = n
		case "type":
			c.Type = ColumnType(strings.ToUpper(val))
		case "default":
			c.Default = val
		default:
			return nil, fmt.Errorf("verlog: field %s: unknown tag option %q", f.Name, key)
		}
	}
	return c, nil
}

func columnTypeOf(typ reflect.Type) ColumnType {
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	switch typ {
	case timeType:
		return TypeTimestamp
	case uuidType:
		return TypeUUID
	}
	switch typ.Kind() {
	case reflect.Bool:
		return TypeBoolean
	case reflect.Int8, reflect.Int16, reflect.Uint8, reflect.Uint16:
		return TypeSmallInt
	case reflect.Int, reflect.Int32, reflect.Uint32:
		return TypeInteger
	case reflect.Int64, reflect.Uint, reflect.Uint64:
		return TypeBigInt
	case reflect.Float32:
		return TypeFloat
	case reflect.Float64:
		return TypeDouble
	case reflect.String:
		return TypeVarchar
	case reflect.Map, reflect.Slice, reflect.Struct:
		return TypeJSON
	default:
		return TypeText
	}
}

func resolveTableName(target any) (string, error) {
	switch v := target.(type) {
	case nil:
		return "", errors.New("verlog: nil table target")
	case string:
		return "", fmt.Errorf("verlog: table target must be a struct, got string %q", v)
	}

	val := reflect.ValueOf(target)
	typ := val.Type()

	if typ.Kind() == reflect.Pointer {
		if val.IsNil() {
			return "", fmt.Errorf("verlog: nil pointer target %T", target)
		}
		if namer, ok := val.Interface().(TableNamer); ok {
			return tableNameFrom(namer, target)
		}
		typ = typ.Elem()
		val = val.Elem()
	}

	if typ.Kind() != reflect.Struct {
		return "", fmt.Errorf("verlog: unsupported table target %T", target)
	}
	if namer, ok := val.Interface().(TableNamer); ok {
		return tableNameFrom(namer, target)
	}
	if reflect.PointerTo(typ).Implements(tableNamerType) {
		if namer, ok := reflect.New(typ).Interface().(TableNamer); ok {
			return tableNameFrom(namer, target)
		}
	}
	if typ.Name() == "" {
		return "", fmt.Errorf("verlog: cannot derive table name for anonymous struct of type %v", typ)
	}
	return inflection.Plural(toSnakeCase(typ.Name())), nil
}

func tableNameFrom(namer TableNamer, target any) (string, error) {
	name := strings.TrimSpace(namer.TableName())
	if name == "" {
		return "", fmt.Errorf("verlog: TableName returned empty string. %T", target)
	}
	return name, nil
}

func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
