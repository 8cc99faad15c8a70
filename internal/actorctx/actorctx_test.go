package actorctx

import (
	"context"
	"testing"
)

func TestUserIDRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "kc-42")

	got, ok := UserIDFrom(ctx)
	if !ok || got != "kc-42" {
		t.Fatalf("got %q ok=%v", got, ok)
	}

	if _, ok := UserIDFrom(WithUserID(context.Background(), "")); ok {
		t.Fatalf("empty actor must report missing")
	}
	if _, ok := RequestIDFrom(context.Background()); ok {
		t.Fatalf("bare context has no request id")
	}
}
