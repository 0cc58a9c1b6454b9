package observability

import (
	"context"
	"testing"
)

func TestLogContext(t *testing.T) {
	t.Run("values accumulate across With calls", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithPackage(ctx, "foo")
		ctx = WithChangeID(ctx, "42")
		ctx = WithOperation(ctx, "install")

		lc := GetContext(ctx)
		if lc.Package != "foo" {
			t.Errorf("Package = %q, want foo", lc.Package)
		}
		if lc.ChangeID != "42" {
			t.Errorf("ChangeID = %q, want 42", lc.ChangeID)
		}
		if lc.Operation != "install" {
			t.Errorf("Operation = %q, want install", lc.Operation)
		}
	})

	t.Run("later values override earlier ones", func(t *testing.T) {
		ctx := WithChangeID(context.Background(), "42")
		ctx = WithChangeID(ctx, "43")

		if got := GetContext(ctx).ChangeID; got != "43" {
			t.Errorf("ChangeID = %q, want 43", got)
		}
	})

	t.Run("empty context yields zero value", func(t *testing.T) {
		lc := GetContext(context.Background())
		if lc != (LogContext{}) {
			t.Errorf("expected zero LogContext, got %+v", lc)
		}
	})

	t.Run("attrs only include set fields", func(t *testing.T) {
		ctx := WithPackage(context.Background(), "foo")
		attrs := getLogAttrs(ctx)
		if len(attrs) != 1 {
			t.Fatalf("expected 1 attr, got %d", len(attrs))
		}
		if attrs[0].Key != "package" {
			t.Errorf("attr key = %q, want package", attrs[0].Key)
		}
	})
}
