// Package postgres implements the domain repositories on PostgreSQL with pgx,
// and owns the embedded tern migrations.
package postgres
