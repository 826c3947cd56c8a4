package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgercore/internal/core/apperror"
	"ledgercore/internal/core/reqctx"
)

// memRepo keeps per-tenant chains in memory, sealing on append the way the
// Postgres repository does under its chain lock.
type memRepo struct {
	mu     sync.Mutex
	chains map[string][]*Record
	fail   bool
}

func newMemRepo() *memRepo {
	return &memRepo{chains: map[string][]*Record{}}
}

func (r *memRepo) Append(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return assert.AnError
	}
	chain := r.chains[rec.TenantID]
	prev := GenesisHash
	var seq int64 = 1
	if n := len(chain); n > 0 {
		prev = chain[n-1].Hash
		seq = chain[n-1].Seq + 1
	}
	if err := rec.Seal(seq, prev); err != nil {
		return err
	}
	r.chains[rec.TenantID] = append(chain, rec)
	return nil
}

func (r *memRepo) List(_ context.Context, filter Filter) ([]*Record, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.chains[filter.TenantID]
	return chain, len(chain), nil
}

func (r *memRepo) ChainRange(_ context.Context, tenantID string, fromSeq, toSeq int64) ([]*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Record
	for _, rec := range r.chains[tenantID] {
		if rec.Seq >= fromSeq && (toSeq <= 0 || rec.Seq <= toSeq) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memRepo) Head(_ context.Context, tenantID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.chains[tenantID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

func (r *memRepo) PurgeBefore(_ context.Context, tenantID string, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chain := r.chains[tenantID]
	kept := chain[:0]
	purged := 0
	for _, rec := range chain {
		if rec.OccurredAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, rec)
	}
	r.chains[tenantID] = kept
	return purged, nil
}

func actorCtx(tenantID string) context.Context {
	return reqctx.With(context.Background(), &reqctx.Context{
		TenantID: tenantID, UserID: "u1", Email: "cfo@acme.test", ClientIP: "10.0.0.1",
	})
}

func TestCanonicalBytesAreDeterministic(t *testing.T) {
	rec := New(&reqctx.Context{TenantID: "t1", UserID: "u1"}, "req-1",
		ActionUpdate, "invoice", "inv-1", true,
		map[string]any{"zeta": 1, "alpha": "x", "mid": true})

	a, err := rec.CanonicalBytes()
	require.NoError(t, err)
	b, err := rec.CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	// Map keys serialize sorted.
	assert.Regexp(t, `"alpha".*"mid".*"zeta"`, string(a))
}

func TestChainLinksAndVerifies(t *testing.T) {
	repo := newMemRepo()
	ctx := actorCtx("t1")

	for i := 0; i < 5; i++ {
		rec := New(reqctx.From(ctx), "", ActionCreate, "invoice", "inv", true, nil)
		require.NoError(t, repo.Append(ctx, rec))
	}

	chain, err := repo.ChainRange(ctx, "t1", 1, 0)
	require.NoError(t, err)
	require.Len(t, chain, 5)
	assert.Equal(t, GenesisHash, chain[0].PrevHash)
	assert.Equal(t, chain[0].Hash, chain[1].PrevHash)

	broken, err := VerifyChain(chain)
	require.NoError(t, err)
	assert.Zero(t, broken)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	repo := newMemRepo()
	ctx := actorCtx("t1")
	for i := 0; i < 5; i++ {
		rec := New(reqctx.From(ctx), "", ActionUpdate, "invoice", "inv", true,
			map[string]any{"amount": i})
		require.NoError(t, repo.Append(ctx, rec))
	}
	chain, _ := repo.ChainRange(ctx, "t1", 1, 0)

	// Editing a record's payload breaks its own hash.
	chain[2].Details = map[string]any{"amount": 999}
	broken, err := VerifyChain(chain)
	require.Error(t, err)
	assert.Equal(t, int64(3), broken)

	// Removing a record from the middle breaks the linkage.
	chain, _ = repo.ChainRange(ctx, "t1", 1, 0)
	spliced := append([]*Record{}, chain[0], chain[1], chain[3], chain[4])
	broken, err = VerifyChain(spliced)
	require.Error(t, err)
	assert.Equal(t, int64(4), broken)
}

func TestVerifyChainAnchorsMidChain(t *testing.T) {
	repo := newMemRepo()
	ctx := actorCtx("t1")
	for i := 0; i < 5; i++ {
		rec := New(reqctx.From(ctx), "", ActionRead, "invoice", "inv", true, nil)
		require.NoError(t, repo.Append(ctx, rec))
	}

	// A range starting after a retention purge still verifies.
	tail, err := repo.ChainRange(ctx, "t1", 3, 0)
	require.NoError(t, err)
	broken, err := VerifyChain(tail)
	require.NoError(t, err)
	assert.Zero(t, broken)
}

func TestSeparateTenantChains(t *testing.T) {
	repo := newMemRepo()

	require.NoError(t, repo.Append(actorCtx("t1"), New(&reqctx.Context{TenantID: "t1"}, "", ActionCreate, "invoice", "a", true, nil)))
	require.NoError(t, repo.Append(actorCtx("t2"), New(&reqctx.Context{TenantID: "t2"}, "", ActionCreate, "invoice", "b", true, nil)))

	h1, _ := repo.Head(context.Background(), "t1")
	h2, _ := repo.Head(context.Background(), "t2")
	assert.Equal(t, int64(1), h1.Seq)
	assert.Equal(t, int64(1), h2.Seq)
	assert.Equal(t, GenesisHash, h2.PrevHash)
}

func TestCriticalActionFailsWhenStoreDown(t *testing.T) {
	repo := newMemRepo()
	spool := NewSpool(repo, 8)
	spool.Start(context.Background())
	defer spool.Close()
	svc := NewService(repo, spool)
	ctx := actorCtx("t1")

	repo.fail = true
	for _, action := range []Action{ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionExport, ActionViolation} {
		err := svc.Record(ctx, action, "invoice", "inv-1", true, nil)
		require.Error(t, err, "action %s", action)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeAuditUnavailable, appErr.Code)
	}

	// Informational events do not fail the caller.
	assert.NoError(t, svc.Record(ctx, ActionRead, "invoice", "inv-1", true, nil))
	assert.NoError(t, svc.Record(ctx, ActionLogout, "user", "", true, nil))
}

func TestAuthLoginAuditFailurePropagates(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, NewSpool(repo, 8))
	ctx := actorCtx("t1")

	repo.fail = true
	require.Error(t, svc.Auth(ctx, "LOGIN", true, nil))
	// Logout is informational and rides the spool.
	require.NoError(t, svc.Auth(ctx, "LOGOUT", true, nil))
}

func TestSpoolDrainsInformationalEvents(t *testing.T) {
	repo := newMemRepo()
	spool := NewSpool(repo, 8)
	spool.Start(context.Background())
	svc := NewService(repo, spool)
	ctx := actorCtx("t1")

	require.NoError(t, svc.Record(ctx, ActionLogout, "user", "u-1", true, nil))
	require.NoError(t, svc.Record(ctx, ActionRead, "invoice", "inv-1", true, nil))
	svc.Close()

	chain, err := repo.ChainRange(ctx, "t1", 1, 0)
	require.NoError(t, err)
	assert.Len(t, chain, 2)
}

func TestViolationIsCriticalAndTagged(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, NewSpool(repo, 8))
	ctx := actorCtx("t1")

	require.NoError(t, svc.Violation(ctx, "cross_tenant", map[string]any{"target": "t2"}))

	head, err := repo.Head(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, ActionViolation, head.Action)
	assert.False(t, head.Success)
	assert.Equal(t, "cross_tenant", head.Details["violation"])
}

func TestPurgeExpired(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, NewSpool(repo, 8))
	ctx := actorCtx("t1")

	old := New(reqctx.From(ctx), "", ActionRead, "invoice", "a", true, nil)
	old.OccurredAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Append(ctx, old))
	require.NoError(t, repo.Append(ctx, New(reqctx.From(ctx), "", ActionRead, "invoice", "b", true, nil)))

	n, err := svc.PurgeExpired(ctx, "t1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
