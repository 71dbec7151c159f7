// Package main provides a CLI for verlog models.
//
// The CLI supports:
//   - validate: Check a model file and list the log tables it derives
//   - ddl: Print the CREATE TABLE statements of a model
//   - migrate: Create the model tables in PostgreSQL
//   - demo: Run a save/version round trip in memory or against PostgreSQL
//
// Usage:
//
//	verlog [flags] <command>
package main

func main() {
	Execute()
}
