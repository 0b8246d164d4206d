// Package storage provides the Postgres-backed implementation of
// state.Reader: the durable partition store the command interpreter's
// effects are committed into between commands. Every entity the interpreter
// cares about (object locks, invocation status, state entries, completions,
// journals, inbox) is kept as a JSONB snapshot keyed by its natural key,
// mirroring state.Memory's map layout one level down in Postgres rather than
// normalizing into a wide relational schema -- the interpreter only ever
// reads these rows whole, so there is nothing to gain from splitting them.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriys/partitiond/internal/checkpoint"
	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
	"github.com/oriys/partitiond/internal/metrics"
	"github.com/oriys/partitiond/internal/state"
)

// Engine is the Postgres-backed partition store. It implements state.Reader
// for the interpreter's reads and Commit for folding an effects.Buffer back
// in once a command has fully applied.
type Engine struct {
	pool        *pgxpool.Pool
	partitionID string
}

var _ state.Reader = (*Engine)(nil)

// New opens a pgx pool against dsn, verifies connectivity, and ensures the
// partition schema exists before returning.
func New(ctx context.Context, dsn, partitionID string) (*Engine, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage: postgres DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: create postgres pool: %w", err)
	}
	e := &Engine{pool: pool, partitionID: partitionID}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if err := e.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// Scoped returns a view of this engine's pool addressed at a different
// partition ID, sharing the same connection pool and schema. Each partition
// in a process opens storage once via New and hands every other partition a
// Scoped copy, so that one pgxpool.Pool is shared across the process instead
// of one per partition, while every query still reads/writes only its own
// partition's rows.
func (e *Engine) Scoped(partitionID string) *Engine {
	return &Engine{pool: e.pool, partitionID: partitionID}
}

func (e *Engine) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS object_locks (
			partition_id TEXT NOT NULL,
			service_name TEXT NOT NULL,
			object_key TEXT NOT NULL,
			status JSONB NOT NULL,
			PRIMARY KEY (partition_id, service_name, object_key)
		)`,
		`CREATE TABLE IF NOT EXISTS invocation_status (
			partition_id TEXT NOT NULL,
			partition_key BIGINT NOT NULL,
			invocation_uuid TEXT NOT NULL,
			status JSONB NOT NULL,
			PRIMARY KEY (partition_id, partition_key, invocation_uuid)
		)`,
		`CREATE TABLE IF NOT EXISTS object_state (
			partition_id TEXT NOT NULL,
			service_name TEXT NOT NULL,
			object_key TEXT NOT NULL,
			state_key TEXT NOT NULL,
			value BYTEA NOT NULL,
			PRIMARY KEY (partition_id, service_name, object_key, state_key)
		)`,
		`CREATE TABLE IF NOT EXISTS completions (
			partition_id TEXT NOT NULL,
			partition_key BIGINT NOT NULL,
			invocation_uuid TEXT NOT NULL,
			entry_index INTEGER NOT NULL,
			result JSONB NOT NULL,
			PRIMARY KEY (partition_id, partition_key, invocation_uuid, entry_index)
		)`,
		`CREATE TABLE IF NOT EXISTS journal_entries (
			partition_id TEXT NOT NULL,
			partition_key BIGINT NOT NULL,
			invocation_uuid TEXT NOT NULL,
			entry_index INTEGER NOT NULL,
			entry JSONB NOT NULL,
			PRIMARY KEY (partition_id, partition_key, invocation_uuid, entry_index)
		)`,
		`CREATE TABLE IF NOT EXISTS inbox_entries (
			partition_id TEXT NOT NULL,
			service_name TEXT NOT NULL,
			object_key TEXT NOT NULL,
			inbox_seq BIGINT NOT NULL,
			invocation JSONB NOT NULL,
			PRIMARY KEY (partition_id, service_name, object_key, inbox_seq)
		)`,
		`CREATE TABLE IF NOT EXISTS timers (
			partition_id TEXT NOT NULL,
			due_at TIMESTAMPTZ NOT NULL,
			invocation_uuid TEXT NOT NULL,
			journal_index INTEGER NOT NULL,
			timer JSONB NOT NULL,
			PRIMARY KEY (partition_id, due_at, invocation_uuid, journal_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timers_due ON timers(partition_id, due_at)`,
		`CREATE TABLE IF NOT EXISTS outbox_messages (
			partition_id TEXT NOT NULL,
			outbox_seq BIGINT NOT NULL,
			message JSONB NOT NULL,
			PRIMARY KEY (partition_id, outbox_seq)
		)`,
		`CREATE TABLE IF NOT EXISTS partition_checkpoints (
			partition_id TEXT PRIMARY KEY,
			log_offset BIGINT NOT NULL,
			inbox_seq BIGINT NOT NULL,
			outbox_seq BIGINT NOT NULL,
			committed_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := e.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("storage: ensure schema: %w", err)
		}
	}
	return nil
}

// ── state.Reader ─────────────────────────────────────────────────────────

func (e *Engine) GetVirtualObjectStatus(ctx context.Context, sid domain.ServiceId) (domain.VirtualObjectStatus, error) {
	var data []byte
	err := e.pool.QueryRow(ctx, `
		SELECT status FROM object_locks WHERE partition_id=$1 AND service_name=$2 AND object_key=$3`,
		e.partitionID, sid.ServiceName, sid.Key).Scan(&data)
	if err == pgx.ErrNoRows {
		return domain.UnlockedStatus(), nil
	}
	if err != nil {
		return domain.VirtualObjectStatus{}, fmt.Errorf("get object status: %w", err)
	}
	var status domain.VirtualObjectStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return domain.VirtualObjectStatus{}, fmt.Errorf("decode object status: %w", err)
	}
	return status, nil
}

func (e *Engine) GetInvocationStatus(ctx context.Context, iid domain.InvocationId) (domain.InvocationStatus, error) {
	var data []byte
	err := e.pool.QueryRow(ctx, `
		SELECT status FROM invocation_status WHERE partition_id=$1 AND partition_key=$2 AND invocation_uuid=$3`,
		e.partitionID, iid.PartitionKey, iid.InvocationUuid).Scan(&data)
	if err == pgx.ErrNoRows {
		return domain.FreeStatus(), nil
	}
	if err != nil {
		return domain.InvocationStatus{}, fmt.Errorf("get invocation status: %w", err)
	}
	var status domain.InvocationStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return domain.InvocationStatus{}, fmt.Errorf("decode invocation status: %w", err)
	}
	return status, nil
}

func (e *Engine) GetInboxedInvocation(ctx context.Context, id domain.MaybeFullInvocationId) (*domain.SequenceNumberInvocation, bool, error) {
	target := id.InvocationId()
	rows, err := e.pool.Query(ctx, `
		SELECT inbox_seq, invocation FROM inbox_entries WHERE partition_id=$1`, e.partitionID)
	if err != nil {
		return nil, false, fmt.Errorf("scan inbox for invocation: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq uint64
		var data []byte
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, false, fmt.Errorf("scan inbox entry: %w", err)
		}
		var inv domain.ServiceInvocation
		if err := json.Unmarshal(data, &inv); err != nil {
			return nil, false, fmt.Errorf("decode inbox entry: %w", err)
		}
		if inv.Fid.InvocationId() == target {
			return &domain.SequenceNumberInvocation{InboxSequenceNumber: seq, Invocation: inv}, true, nil
		}
	}
	return nil, false, rows.Err()
}

func (e *Engine) LoadState(ctx context.Context, sid domain.ServiceId, key string) ([]byte, bool, error) {
	var value []byte
	err := e.pool.QueryRow(ctx, `
		SELECT value FROM object_state WHERE partition_id=$1 AND service_name=$2 AND object_key=$3 AND state_key=$4`,
		e.partitionID, sid.ServiceName, sid.Key, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load state: %w", err)
	}
	return value, true, nil
}

func (e *Engine) LoadStateKeys(ctx context.Context, sid domain.ServiceId) ([]string, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT state_key FROM object_state WHERE partition_id=$1 AND service_name=$2 AND object_key=$3 ORDER BY state_key`,
		e.partitionID, sid.ServiceName, sid.Key)
	if err != nil {
		return nil, fmt.Errorf("load state keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan state key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (e *Engine) LoadCompletionResult(ctx context.Context, iid domain.InvocationId, entryIndex domain.EntryIndex) (domain.CompletionResult, bool, error) {
	var data []byte
	err := e.pool.QueryRow(ctx, `
		SELECT result FROM completions WHERE partition_id=$1 AND partition_key=$2 AND invocation_uuid=$3 AND entry_index=$4`,
		e.partitionID, iid.PartitionKey, iid.InvocationUuid, entryIndex).Scan(&data)
	if err == pgx.ErrNoRows {
		return domain.CompletionResult{}, false, nil
	}
	if err != nil {
		return domain.CompletionResult{}, false, fmt.Errorf("load completion: %w", err)
	}
	var result domain.CompletionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.CompletionResult{}, false, fmt.Errorf("decode completion: %w", err)
	}
	return result, true, nil
}

func (e *Engine) JournalEntries(ctx context.Context, iid domain.InvocationId, length domain.EntryIndex) (state.JournalIterator, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT entry_index, entry FROM journal_entries
		WHERE partition_id=$1 AND partition_key=$2 AND invocation_uuid=$3 AND entry_index < $4
		ORDER BY entry_index ASC`,
		e.partitionID, iid.PartitionKey, iid.InvocationUuid, length)
	if err != nil {
		return nil, fmt.Errorf("open journal iterator: %w", err)
	}

	var entries []domain.JournalEntry
	var indices []domain.EntryIndex
	for rows.Next() {
		var idx domain.EntryIndex
		var data []byte
		if err := rows.Scan(&idx, &data); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		var je domain.JournalEntry
		if err := json.Unmarshal(data, &je); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		indices = append(indices, idx)
		entries = append(entries, je)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rowIterator{indices: indices, entries: entries}, nil
}

type rowIterator struct {
	indices []domain.EntryIndex
	entries []domain.JournalEntry
	pos     int
}

func (it *rowIterator) Next(_ context.Context) (domain.EntryIndex, domain.JournalEntry, bool, error) {
	if it.pos >= len(it.entries) {
		return 0, domain.JournalEntry{}, false, nil
	}
	idx, e := it.indices[it.pos], it.entries[it.pos]
	it.pos++
	return idx, e, true, nil
}

func (it *rowIterator) Close() error { return nil }

// Commit folds one command's effects.Buffer into Postgres inside a single
// transaction, so that a crash between accepting a command and committing
// its effects leaves the partition's durable state exactly as it was before
// the command was applied -- replay from the log picks it up again from
// scratch, never from a half-written effect.
func (e *Engine) Commit(ctx context.Context, buf *effects.Buffer) error {
	if buf.Len() == 0 {
		return nil
	}
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("commit: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, eff := range buf.Effects {
		if err := e.applyEffect(ctx, tx, eff); err != nil {
			return fmt.Errorf("commit effect %v: %w", eff.Kind, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	metrics.RecordPrometheusStorageWrite(e.partitionID, 0)
	return nil
}

func (e *Engine) applyEffect(ctx context.Context, tx pgx.Tx, eff effects.Effect) error {
	switch eff.Kind {
	case effects.InvokeService:
		sid := eff.ServiceInvocation.Fid.ServiceId
		if err := putJSON(ctx, tx, `
			INSERT INTO object_locks (partition_id, service_name, object_key, status) VALUES ($1,$2,$3,$4)
			ON CONFLICT (partition_id, service_name, object_key) DO UPDATE SET status=EXCLUDED.status`,
			e.partitionID, sid.ServiceName, sid.Key, domain.LockedStatus(eff.ServiceInvocation.Fid)); err != nil {
			return err
		}
		meta := domain.InvocationMetadata{
			ServiceId:    sid,
			Method:       eff.ServiceInvocation.MethodName,
			ResponseSink: eff.ServiceInvocation.ResponseSink,
			Journal:      domain.JournalMetadata{SpanContext: eff.ServiceInvocation.SpanContext},
		}
		return e.putInvocationStatus(ctx, tx, eff.ServiceInvocation.Fid.InvocationId(), domain.InvokedStatus(meta))
	case effects.ResumeService:
		return e.putInvocationStatus(ctx, tx, eff.Fid.InvocationId(), domain.InvokedStatus(eff.Metadata))
	case effects.SuspendService:
		return e.putInvocationStatus(ctx, tx, eff.Fid.InvocationId(), domain.SuspendedStatus(eff.Metadata, eff.WaitingFor))
	case effects.AbortInvocation:
		return nil
	case effects.DropJournalAndPopInbox:
		if _, err := tx.Exec(ctx, `DELETE FROM journal_entries WHERE partition_id=$1 AND invocation_uuid=$2`,
			e.partitionID, eff.InvocationId.InvocationUuid); err != nil {
			return err
		}
		if err := putJSON(ctx, tx, `
			INSERT INTO object_locks (partition_id, service_name, object_key, status) VALUES ($1,$2,$3,$4)
			ON CONFLICT (partition_id, service_name, object_key) DO UPDATE SET status=EXCLUDED.status`,
			e.partitionID, eff.ServiceId.ServiceName, eff.ServiceId.Key, domain.UnlockedStatus()); err != nil {
			return err
		}
		return e.putInvocationStatus(ctx, tx, eff.InvocationId, domain.FreeStatus())
	case effects.AppendJournalEntry:
		je := domain.JournalEntry{Kind: domain.JournalEntryRaw, Entry: eff.Entry}
		return putJSON(ctx, tx, `
			INSERT INTO journal_entries (partition_id, partition_key, invocation_uuid, entry_index, entry) VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (partition_id, partition_key, invocation_uuid, entry_index) DO UPDATE SET entry=EXCLUDED.entry`,
			e.partitionID, eff.Fid.PartitionKey(), eff.Fid.InvocationUuid, eff.EntryIndex, je)
	case effects.StoreCompletion:
		return putJSON(ctx, tx, `
			INSERT INTO completions (partition_id, partition_key, invocation_uuid, entry_index, result) VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (partition_id, partition_key, invocation_uuid, entry_index) DO UPDATE SET result=EXCLUDED.result`,
			e.partitionID, eff.InvocationId.PartitionKey, eff.InvocationId.InvocationUuid, eff.Completion.EntryIndex, eff.Completion.Result)
	case effects.ForwardCompletion:
		return nil // delivered to the invoker actuator, not persisted here
	case effects.SetState:
		_, err := tx.Exec(ctx, `
			INSERT INTO object_state (partition_id, service_name, object_key, state_key, value) VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (partition_id, service_name, object_key, state_key) DO UPDATE SET value=EXCLUDED.value`,
			e.partitionID, eff.ServiceId.ServiceName, eff.ServiceId.Key, eff.Key, eff.Value)
		return err
	case effects.ClearState:
		_, err := tx.Exec(ctx, `DELETE FROM object_state WHERE partition_id=$1 AND service_name=$2 AND object_key=$3 AND state_key=$4`,
			e.partitionID, eff.ServiceId.ServiceName, eff.ServiceId.Key, eff.Key)
		return err
	case effects.ClearAllState:
		_, err := tx.Exec(ctx, `DELETE FROM object_state WHERE partition_id=$1 AND service_name=$2 AND object_key=$3`,
			e.partitionID, eff.ServiceId.ServiceName, eff.ServiceId.Key)
		return err
	case effects.ApplyStateMutation:
		mut := eff.Mutation
		if mut.ClearAll {
			if _, err := tx.Exec(ctx, `DELETE FROM object_state WHERE partition_id=$1 AND service_name=$2 AND object_key=$3`,
				e.partitionID, mut.ServiceId.ServiceName, mut.ServiceId.Key); err != nil {
				return err
			}
		}
		for k, v := range mut.Mutations {
			if v == nil {
				if _, err := tx.Exec(ctx, `DELETE FROM object_state WHERE partition_id=$1 AND service_name=$2 AND object_key=$3 AND state_key=$4`,
					e.partitionID, mut.ServiceId.ServiceName, mut.ServiceId.Key, k); err != nil {
					return err
				}
				continue
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO object_state (partition_id, service_name, object_key, state_key, value) VALUES ($1,$2,$3,$4,$5)
				ON CONFLICT (partition_id, service_name, object_key, state_key) DO UPDATE SET value=EXCLUDED.value`,
				e.partitionID, mut.ServiceId.ServiceName, mut.ServiceId.Key, k, v); err != nil {
				return err
			}
		}
		return nil
	case effects.EnqueueIntoInbox:
		if err := putJSON(ctx, tx, `
			INSERT INTO inbox_entries (partition_id, service_name, object_key, inbox_seq, invocation) VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (partition_id, service_name, object_key, inbox_seq) DO UPDATE SET invocation=EXCLUDED.invocation`,
			e.partitionID, eff.ServiceId.ServiceName, eff.ServiceId.Key, eff.InboxSeq, eff.InboxEntry.Invocation); err != nil {
			return err
		}
		return e.putInvocationStatus(ctx, tx, eff.InboxEntry.Invocation.Fid.InvocationId(),
			domain.InboxedStatus(eff.InboxSeq, eff.InboxEntry.Invocation))
	case effects.DeleteInboxEntry:
		_, err := tx.Exec(ctx, `DELETE FROM inbox_entries WHERE partition_id=$1 AND service_name=$2 AND object_key=$3 AND inbox_seq=$4`,
			e.partitionID, eff.ServiceId.ServiceName, eff.ServiceId.Key, eff.InboxSeq)
		return err
	case effects.EnqueueIntoOutbox:
		return putJSON(ctx, tx, `
			INSERT INTO outbox_messages (partition_id, outbox_seq, message) VALUES ($1,$2,$3)
			ON CONFLICT (partition_id, outbox_seq) DO UPDATE SET message=EXCLUDED.message`,
			e.partitionID, eff.OutboxSeq, eff.OutboxMessage)
	case effects.TruncateOutbox:
		_, err := tx.Exec(ctx, `DELETE FROM outbox_messages WHERE partition_id=$1 AND outbox_seq <= $2`, e.partitionID, eff.TruncateUpTo)
		return err
	case effects.RegisterTimer:
		return putJSON(ctx, tx, `
			INSERT INTO timers (partition_id, due_at, invocation_uuid, journal_index, timer) VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (partition_id, due_at, invocation_uuid, journal_index) DO UPDATE SET timer=EXCLUDED.timer`,
			e.partitionID, eff.TimerKey.Timestamp, eff.TimerKey.InvocationUuid, eff.TimerKey.JournalIndex, eff.Timer)
	case effects.DeleteTimer:
		_, err := tx.Exec(ctx, `DELETE FROM timers WHERE partition_id=$1 AND due_at=$2 AND invocation_uuid=$3 AND journal_index=$4`,
			e.partitionID, eff.TimerKey.Timestamp, eff.TimerKey.InvocationUuid, eff.TimerKey.JournalIndex)
		return err
	case effects.SendIngressResponse, effects.TraceBackgroundInvoke, effects.TraceInvocationResult:
		return nil // delivered to the ingress/tracing actuators, not persisted
	default:
		return fmt.Errorf("unknown effect kind %v", eff.Kind)
	}
}

func (e *Engine) putInvocationStatus(ctx context.Context, tx pgx.Tx, iid domain.InvocationId, status domain.InvocationStatus) error {
	return putJSON(ctx, tx, `
		INSERT INTO invocation_status (partition_id, partition_key, invocation_uuid, status) VALUES ($1,$2,$3,$4)
		ON CONFLICT (partition_id, partition_key, invocation_uuid) DO UPDATE SET status=EXCLUDED.status`,
		e.partitionID, iid.PartitionKey, iid.InvocationUuid, status)
}

func putJSON(ctx context.Context, tx pgx.Tx, query string, args ...any) error {
	last := len(args) - 1
	data, err := json.Marshal(args[last])
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	args[last] = data
	_, err = tx.Exec(ctx, query, args...)
	return err
}

// SaveCheckpoint persists the partition's latest commit position so that a
// restarted process can seed interp.New without replaying the whole log.
func (e *Engine) SaveCheckpoint(ctx context.Context, rec checkpoint.CommitRecord) error {
	_, err := e.pool.Exec(ctx, `
		INSERT INTO partition_checkpoints (partition_id, log_offset, inbox_seq, outbox_seq, committed_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (partition_id) DO UPDATE SET
			log_offset=EXCLUDED.log_offset, inbox_seq=EXCLUDED.inbox_seq,
			outbox_seq=EXCLUDED.outbox_seq, committed_at=EXCLUDED.committed_at`,
		rec.PartitionID, rec.LogOffset, rec.InboxSeq, rec.OutboxSeq)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the partition's last saved commit position, or nil
// if this partition has never committed anything.
func (e *Engine) LoadCheckpoint(ctx context.Context, partitionID string) (*checkpoint.CommitRecord, error) {
	var rec checkpoint.CommitRecord
	rec.PartitionID = partitionID
	err := e.pool.QueryRow(ctx, `
		SELECT log_offset, inbox_seq, outbox_seq, committed_at FROM partition_checkpoints WHERE partition_id=$1`,
		partitionID).Scan(&rec.LogOffset, &rec.InboxSeq, &rec.OutboxSeq, &rec.CommittedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return &rec, nil
}

// OutboxEntry pairs a queued outbox message with the sequence number it was
// enqueued under, so the shuffler can truncate everything up to and
// including the highest sequence it has successfully routed.
type OutboxEntry struct {
	Seq     uint64
	Message domain.OutboxMessage
}

// PendingOutbox returns this partition's outbox messages in enqueue order,
// for the shuffler to drain and route to their owning partition.
func (e *Engine) PendingOutbox(ctx context.Context) ([]OutboxEntry, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT outbox_seq, message FROM outbox_messages WHERE partition_id=$1 ORDER BY outbox_seq ASC`,
		e.partitionID)
	if err != nil {
		return nil, fmt.Errorf("pending outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		var seq uint64
		var data []byte
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		var msg domain.OutboxMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode outbox entry: %w", err)
		}
		out = append(out, OutboxEntry{Seq: seq, Message: msg})
	}
	return out, rows.Err()
}

// DueTimers returns timers with a due time at or before asOf, for the timer
// actuator to pick up and fire.
func (e *Engine) DueTimers(ctx context.Context, asOf int64) ([]domain.TimerValue, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT timer FROM timers WHERE partition_id=$1 AND due_at <= to_timestamp($2) ORDER BY due_at ASC`,
		e.partitionID, asOf)
	if err != nil {
		return nil, fmt.Errorf("due timers: %w", err)
	}
	defer rows.Close()

	var out []domain.TimerValue
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		var t domain.Timer
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decode timer: %w", err)
		}
		out = append(out, domain.TimerValue{Value: t})
	}
	return out, rows.Err()
}
