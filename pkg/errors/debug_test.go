package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDumpCapturesTypedMetadata(t *testing.T) {
	err := Wrap(CodeDependency, fmt.Errorf("dial tcp: timeout"), "stripe unreachable").
		WithDetails(map[string]any{"provider": "stripe"})

	d := Dump(fmt.Errorf("init transaction: %w", err))
	if d.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", d.Code)
	}
	if d.HTTPStatus != http.StatusServiceUnavailable || !d.Retryable {
		t.Fatalf("unexpected metadata %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected three links in chain, got %d: %v", len(d.Chain), d.Chain)
	}
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ux_payment_transactions_reservation",
		TableName:      "payment_transactions",
		Message:        "duplicate key value violates unique constraint",
	}
	d := Dump(Wrap(CodeConflict, pgErr, "persist transaction"))
	if d.PGCode != "23505" || d.PGConstraint != "ux_payment_transactions_reservation" {
		t.Fatalf("unexpected pg fields %+v", d)
	}
	if d.PGTable != "payment_transactions" {
		t.Fatalf("unexpected table %q", d.PGTable)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || d.Code != "" {
		t.Fatalf("expected zero dump, got %+v", d)
	}
}
