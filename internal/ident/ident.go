package ident

import (
	"strings"
)

// DefaultLogPattern names one log table per tracked column.
const DefaultLogPattern = "{table}_{column}_log"

// LogTableName expands a log table pattern for the given origin table and column.
// Only the last segment of a qualified table name is used.
func LogTableName(pattern, table, column string) string {
	if pattern == "" {
		pattern = DefaultLogPattern
	}
	r := strings.NewReplacer("{table}", BaseTableName(table), "{column}", column)
	return r.Replace(pattern)
}

// SplitQualified splits a potentially schema-qualified identifier into its parts.
func SplitQualified(ident string) []string {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return nil
	}
	var parts []string
	var buf strings.Builder
	inQuotes := false
	runes := []rune(ident)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				buf.WriteRune('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case '.':
			if inQuotes {
				buf.WriteRune(r)
				continue
			}
			parts = append(parts, strings.TrimSpace(buf.String()))
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	parts = append(parts, strings.TrimSpace(buf.String()))
	return parts
}

// Qualify joins an optional schema and a table name into identifier parts.
func Qualify(schema, table string) []string {
	if schema == "" {
		return []string{table}
	}
	return []string{schema, table}
}

// QuoteQualified renders qualified identifier parts as a SQL identifier.
func QuoteQualified(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = Quote(p)
	}
	return strings.Join(quoted, ".")
}

// Quote safely quotes a single identifier part.
func Quote(part string) string {
	return `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
}

// QuoteAll quotes every column name and joins them with ", ".
func QuoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// BaseTableName returns the last segment of a qualified identifier.
func BaseTableName(ident string) string {
	parts := SplitQualified(ident)
	if len(parts) == 0 {
		return strings.TrimSpace(ident)
	}
	return parts[len(parts)-1]
}

// Camel converts snake_case (or kebab-case) into an exported Go-style name.
// "created_by" becomes "CreatedBy", "id" becomes "Id".
func Camel(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '_' || r == '-' || r == ' ' || r == '.' {
			upper = true
			continue
		}
		if upper {
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
