// Package audit_repo persists the per-tenant audit chain. Appends take a
// per-tenant advisory lock inside the transaction so the chain head is
// read and extended serially; large detail payloads are stored
// zstd-compressed.
package audit_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"

	"ledgercore/internal/domain/audit"
	"ledgercore/internal/infrastructure/storage/postgres"
)

// CompressionAlgo names the payload compression applied to a row.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const defaultCompressThreshold = 10 * 1024 // bytes

// AuditRepo implements audit.Repository on PostgreSQL.
type AuditRepo struct {
	txm               *postgres.TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditRepo creates the audit repository.
func NewAuditRepo(txm *postgres.TxManager) (*AuditRepo, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditRepo{
		txm:               txm,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: defaultCompressThreshold,
	}, nil
}

// Append seals the record against the tenant's chain head and inserts it.
// The advisory lock is transaction-scoped: it releases on commit or
// rollback, and every writer for the same tenant queues behind it.
func (r *AuditRepo) Append(ctx context.Context, rec *audit.Record) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txm.GetQuerier(ctx)

		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.TenantID); err != nil {
			return fmt.Errorf("lock audit chain: %w", err)
		}

		var headSeq int64
		var headHash string
		err := q.QueryRow(ctx, `
			SELECT seq, hash FROM audit_records
			WHERE tenant_id = $1
			ORDER BY seq DESC
			LIMIT 1
		`, rec.TenantID).Scan(&headSeq, &headHash)
		if err == pgx.ErrNoRows {
			headSeq, headHash = 0, audit.GenesisHash
		} else if err != nil {
			return fmt.Errorf("read audit chain head: %w", err)
		}

		if err := rec.Seal(headSeq+1, headHash); err != nil {
			return fmt.Errorf("seal audit record: %w", err)
		}

		details, compressed, algo, err := r.packDetails(rec.Details)
		if err != nil {
			return err
		}

		_, err = q.Exec(ctx, `
			INSERT INTO audit_records (
				id, tenant_id, seq, action, entity_type, entity_id,
				actor_id, actor_email, success, details, details_compressed,
				compression_algo, client_ip, user_agent, request_id,
				occurred_at, prev_hash, hash
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
				$14, $15, $16, $17, $18
			)
		`,
			rec.ID, rec.TenantID, rec.Seq, rec.Action, rec.EntityType,
			rec.EntityID, rec.ActorID, rec.ActorEmail, rec.Success,
			details, compressed, algo, rec.ClientIP, rec.UserAgent,
			rec.RequestID, rec.OccurredAt, rec.PrevHash, rec.Hash,
		)
		if err != nil {
			return fmt.Errorf("insert audit record: %w", err)
		}
		return nil
	})
}

// List retrieves records matching the filter, newest first.
func (r *AuditRepo) List(ctx context.Context, f audit.Filter) ([]*audit.Record, int, error) {
	q := r.builder().
		Select(recordColumns()...).
		From("audit_records")
	q = applyFilter(q, f)

	countSQL, countArgs, err := r.builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	q = q.OrderBy("occurred_at DESC", "seq DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	records, err := r.scanRecords(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ChainRange returns one tenant's records ordered by seq ascending.
func (r *AuditRepo) ChainRange(ctx context.Context, tenantID string, fromSeq, toSeq int64) ([]*audit.Record, error) {
	q := r.builder().
		Select(recordColumns()...).
		From("audit_records").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.GtOrEq{"seq": fromSeq}).
		OrderBy("seq ASC")
	if toSeq > 0 {
		q = q.Where(squirrel.LtOrEq{"seq": toSeq})
	}
	return r.scanRecords(ctx, q)
}

// Head returns the newest record of a tenant's chain, or nil when empty.
func (r *AuditRepo) Head(ctx context.Context, tenantID string) (*audit.Record, error) {
	q := r.builder().
		Select(recordColumns()...).
		From("audit_records").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("seq DESC").
		Limit(1)

	records, err := r.scanRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// PurgeBefore removes records older than cutoff from the oldest end of the
// chain. Records newer than the oldest surviving record stay even when
// they predate the cutoff, so the remaining chain stays contiguous.
func (r *AuditRepo) PurgeBefore(ctx context.Context, tenantID string, cutoff time.Time) (int, error) {
	var purged int
	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := r.txm.GetQuerier(ctx)

		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID); err != nil {
			return fmt.Errorf("lock audit chain: %w", err)
		}

		// First sequence that must survive; everything below it goes.
		var keepFrom int64
		err := q.QueryRow(ctx, `
			SELECT COALESCE(MIN(seq), 0) FROM audit_records
			WHERE tenant_id = $1 AND occurred_at >= $2
		`, tenantID, cutoff).Scan(&keepFrom)
		if err != nil {
			return fmt.Errorf("find retention boundary: %w", err)
		}

		var cond squirrel.Sqlizer
		if keepFrom > 0 {
			cond = squirrel.Lt{"seq": keepFrom}
		} else {
			// Nothing survives the cutoff; purge the whole chain.
			cond = squirrel.Lt{"occurred_at": cutoff}
		}

		sql, args, err := r.builder().
			Delete("audit_records").
			Where(squirrel.Eq{"tenant_id": tenantID}).
			Where(cond).
			ToSql()
		if err != nil {
			return fmt.Errorf("build purge: %w", err)
		}
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("purge audit records: %w", err)
		}
		purged = int(tag.RowsAffected())
		return nil
	})
	return purged, err
}

func (r *AuditRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func recordColumns() []string {
	return []string{
		"id", "tenant_id", "seq", "action", "entity_type", "entity_id",
		"actor_id", "actor_email", "success", "details",
		"details_compressed", "compression_algo", "client_ip",
		"user_agent", "request_id", "occurred_at", "prev_hash", "hash",
	}
}

func applyFilter(q squirrel.SelectBuilder, f audit.Filter) squirrel.SelectBuilder {
	if f.TenantID != "" {
		q = q.Where(squirrel.Eq{"tenant_id": f.TenantID})
	}
	if f.ActorID != "" {
		q = q.Where(squirrel.Eq{"actor_id": f.ActorID})
	}
	if f.Action != "" {
		q = q.Where(squirrel.Eq{"action": f.Action})
	}
	if f.EntityType != "" {
		q = q.Where(squirrel.Eq{"entity_type": f.EntityType})
	}
	if f.EntityID != "" {
		q = q.Where(squirrel.Eq{"entity_id": f.EntityID})
	}
	if !f.Since.IsZero() {
		q = q.Where(squirrel.GtOrEq{"occurred_at": f.Since})
	}
	if !f.Until.IsZero() {
		q = q.Where(squirrel.Lt{"occurred_at": f.Until})
	}
	return q
}

func (r *AuditRepo) scanRecords(ctx context.Context, q squirrel.SelectBuilder) ([]*audit.Record, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []*audit.Record
	for rows.Next() {
		var rec audit.Record
		var details []byte
		var compressed []byte
		var algo CompressionAlgo
		err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.Seq, &rec.Action, &rec.EntityType,
			&rec.EntityID, &rec.ActorID, &rec.ActorEmail, &rec.Success,
			&details, &compressed, &algo, &rec.ClientIP, &rec.UserAgent,
			&rec.RequestID, &rec.OccurredAt, &rec.PrevHash, &rec.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if err := r.unpackDetails(&rec, details, compressed, algo); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit records: %w", err)
	}
	return records, nil
}

// packDetails marshals the details map, compressing payloads above the
// threshold.
func (r *AuditRepo) packDetails(details map[string]any) (plain, compressed []byte, algo CompressionAlgo, err error) {
	if len(details) == 0 {
		return nil, nil, CompressionNone, nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, nil, CompressionNone, fmt.Errorf("marshal audit details: %w", err)
	}
	if len(raw) > r.compressThreshold {
		return nil, r.encoder.EncodeAll(raw, nil), CompressionZstd, nil
	}
	return raw, nil, CompressionNone, nil
}

func (r *AuditRepo) unpackDetails(rec *audit.Record, plain, compressed []byte, algo CompressionAlgo) error {
	raw := plain
	if algo == CompressionZstd {
		decompressed, err := r.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return fmt.Errorf("decompress audit details: %w", err)
		}
		raw = decompressed
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &rec.Details); err != nil {
		return fmt.Errorf("unmarshal audit details: %w", err)
	}
	return nil
}

// Close releases the zstd encoder and decoder.
func (r *AuditRepo) Close() {
	_ = r.encoder.Close()
	r.decoder.Close()
}

var _ audit.Repository = (*AuditRepo)(nil)
