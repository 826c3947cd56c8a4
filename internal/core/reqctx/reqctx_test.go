package reqctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, From(ctx))
	assert.Empty(t, TenantID(ctx))
	assert.Empty(t, UserID(ctx))
}

func TestWithAndAccessors(t *testing.T) {
	rc := &Context{
		TenantID:    "t-1",
		TenantSlug:  "acme",
		UserID:      "u-1",
		Role:        "accountant",
		Permissions: []string{"invoices:read"},
		RequestID:   "req-1",
	}
	ctx := With(context.Background(), rc)

	require.NotNil(t, From(ctx))
	assert.Equal(t, "t-1", TenantID(ctx))
	assert.Equal(t, "u-1", UserID(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.True(t, From(ctx).HasPermission("invoices:read"))
	assert.False(t, From(ctx).HasPermission("invoices:delete"))
}

func TestRequestIDFallsBackToTrace(t *testing.T) {
	ctx := WithTrace(context.Background(), &Trace{RequestID: "req-early"})
	assert.Equal(t, "req-early", RequestID(ctx))
}

func TestOpenScopeDetachesCancellation(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	parent = With(parent, &Context{TenantID: "t-request"})

	scoped, closeScope := OpenScope(parent, &Context{TenantID: "t-worker"})
	defer closeScope()

	// Cancelling the originating request must not cancel the worker scope.
	cancelParent()
	select {
	case <-scoped.Done():
		t.Fatal("worker scope was cancelled by parent")
	case <-time.After(10 * time.Millisecond):
	}

	// The worker sees its own context, not the request's.
	assert.Equal(t, "t-worker", TenantID(scoped))

	closeScope()
	<-scoped.Done()
}

func TestOverlappingScopesDoNotShareSlots(t *testing.T) {
	base := context.Background()
	a, closeA := OpenScope(base, &Context{TenantID: "tenant-a"})
	b, closeB := OpenScope(base, &Context{TenantID: "tenant-b"})
	defer closeA()
	defer closeB()

	assert.Equal(t, "tenant-a", TenantID(a))
	assert.Equal(t, "tenant-b", TenantID(b))
}
