package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyDBErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unique", &pgconn.PgError{Code: "23505"}, "unique_violation"},
		{"fk", &pgconn.PgError{Code: "23503"}, "foreign_key_violation"},
		{"other_pg", &pgconn.PgError{Code: "42P01"}, "pg_42P01"},
		{"no_rows", pgx.ErrNoRows, "no_rows"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"unknown", errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyDBErr(tt.err); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}
