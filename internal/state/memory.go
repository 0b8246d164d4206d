package state

import (
	"context"
	"sort"
	"sync"

	"github.com/oriys/partitiond/internal/domain"
	"github.com/oriys/partitiond/internal/effects"
)

// Memory is an in-memory Reader, also capable of absorbing an effects.Buffer
// via Apply. It exists for interpreter unit tests and local development
// without Postgres; internal/storage's Postgres-backed reader is the
// production implementation of the same contract.
type Memory struct {
	mu sync.Mutex

	objects     map[domain.ServiceId]domain.VirtualObjectStatus
	invocations map[domain.InvocationId]domain.InvocationStatus
	stateKeys   map[domain.ServiceId]map[string][]byte
	completions map[domain.InvocationId]map[domain.EntryIndex]domain.CompletionResult
	journals    map[domain.InvocationId][]domain.JournalEntry
	inbox       map[domain.ServiceId][]domain.SequenceNumberInvocation
}

func NewMemory() *Memory {
	return &Memory{
		objects:     make(map[domain.ServiceId]domain.VirtualObjectStatus),
		invocations: make(map[domain.InvocationId]domain.InvocationStatus),
		stateKeys:   make(map[domain.ServiceId]map[string][]byte),
		completions: make(map[domain.InvocationId]map[domain.EntryIndex]domain.CompletionResult),
		journals:    make(map[domain.InvocationId][]domain.JournalEntry),
		inbox:       make(map[domain.ServiceId][]domain.SequenceNumberInvocation),
	}
}

func (m *Memory) GetVirtualObjectStatus(_ context.Context, sid domain.ServiceId) (domain.VirtualObjectStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.objects[sid]; ok {
		return s, nil
	}
	return domain.UnlockedStatus(), nil
}

func (m *Memory) GetInvocationStatus(_ context.Context, iid domain.InvocationId) (domain.InvocationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.invocations[iid]; ok {
		return s, nil
	}
	return domain.FreeStatus(), nil
}

func (m *Memory) GetInboxedInvocation(_ context.Context, id domain.MaybeFullInvocationId) (*domain.SequenceNumberInvocation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := id.InvocationId()
	for _, entries := range m.inbox {
		for _, e := range entries {
			if e.Invocation.Fid.InvocationId() == target {
				cp := e
				return &cp, true, nil
			}
		}
	}
	return nil, false, nil
}

func (m *Memory) LoadState(_ context.Context, sid domain.ServiceId, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ok := m.stateKeys[sid]
	if !ok {
		return nil, false, nil
	}
	v, ok := keys[key]
	return v, ok, nil
}

func (m *Memory) LoadStateKeys(_ context.Context, sid domain.ServiceId) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := m.stateKeys[sid]
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) LoadCompletionResult(_ context.Context, iid domain.InvocationId, entryIndex domain.EntryIndex) (domain.CompletionResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byIdx, ok := m.completions[iid]
	if !ok {
		return domain.CompletionResult{}, false, nil
	}
	r, ok := byIdx[entryIndex]
	return r, ok, nil
}

func (m *Memory) JournalEntries(_ context.Context, iid domain.InvocationId, length domain.EntryIndex) (JournalIterator, error) {
	m.mu.Lock()
	entries := append([]domain.JournalEntry(nil), m.journals[iid]...)
	m.mu.Unlock()
	if domain.EntryIndex(len(entries)) > length {
		entries = entries[:length]
	}
	return &sliceIterator{entries: entries}, nil
}

type sliceIterator struct {
	entries []domain.JournalEntry
	pos     int
}

func (it *sliceIterator) Next(_ context.Context) (domain.EntryIndex, domain.JournalEntry, bool, error) {
	if it.pos >= len(it.entries) {
		return 0, domain.JournalEntry{}, false, nil
	}
	idx := domain.EntryIndex(it.pos)
	e := it.entries[it.pos]
	it.pos++
	return idx, e, true, nil
}

func (it *sliceIterator) Close() error { return nil }

// Apply folds an effects.Buffer into the in-memory store, mimicking what
// the Postgres storage engine does on commit. It is the reference semantics
// for "what committing this buffer means" and is used directly by
// interpreter tests that exercise multiple commands in sequence.
func (m *Memory) Apply(buf *effects.Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range buf.Effects {
		switch e.Kind {
		case effects.InvokeService:
			m.objects[e.ServiceInvocation.Fid.ServiceId] = domain.LockedStatus(e.ServiceInvocation.Fid)
			m.invocations[e.ServiceInvocation.Fid.InvocationId()] = domain.InvokedStatus(domain.InvocationMetadata{
				ServiceId:    e.ServiceInvocation.Fid.ServiceId,
				Method:       e.ServiceInvocation.MethodName,
				ResponseSink: e.ServiceInvocation.ResponseSink,
				Journal:      domain.JournalMetadata{SpanContext: e.ServiceInvocation.SpanContext},
			})
		case effects.ResumeService:
			m.invocations[e.Fid.InvocationId()] = domain.InvokedStatus(e.Metadata)
		case effects.SuspendService:
			m.invocations[e.Fid.InvocationId()] = domain.SuspendedStatus(e.Metadata, e.WaitingFor)
		case effects.AbortInvocation:
			// no storage-visible state change beyond what the invoker does
			// on its own side; the interpreter only needs to have emitted it.
		case effects.AppendJournalEntry:
			iid := e.Fid.InvocationId()
			m.growJournal(iid, e.EntryIndex)
			m.journals[iid][e.EntryIndex] = domain.JournalEntry{Kind: domain.JournalEntryRaw, Entry: e.Entry}
		case effects.StoreCompletion:
			if m.completions[e.InvocationId] == nil {
				m.completions[e.InvocationId] = make(map[domain.EntryIndex]domain.CompletionResult)
			}
			m.completions[e.InvocationId][e.Completion.EntryIndex] = e.Completion.Result
		case effects.SetState:
			m.ensureStateMap(e.ServiceId)[e.Key] = e.Value
		case effects.ClearState:
			delete(m.ensureStateMap(e.ServiceId), e.Key)
		case effects.ClearAllState:
			m.stateKeys[e.ServiceId] = make(map[string][]byte)
		case effects.ApplyStateMutation:
			mut := e.Mutation
			if mut.ClearAll {
				m.stateKeys[mut.ServiceId] = make(map[string][]byte)
			}
			for k, v := range mut.Mutations {
				if v == nil {
					delete(m.ensureStateMap(mut.ServiceId), k)
				} else {
					m.ensureStateMap(mut.ServiceId)[k] = v
				}
			}
		case effects.EnqueueIntoInbox:
			m.inbox[e.ServiceId] = append(m.inbox[e.ServiceId], domain.SequenceNumberInvocation{
				InboxSequenceNumber: e.InboxSeq,
				Invocation:          e.InboxEntry.Invocation,
			})
			m.invocations[e.InboxEntry.Invocation.Fid.InvocationId()] = domain.InboxedStatus(e.InboxSeq, e.InboxEntry.Invocation)
		case effects.DeleteInboxEntry:
			list := m.inbox[e.ServiceId]
			for i, entry := range list {
				if entry.InboxSequenceNumber == e.InboxSeq {
					m.inbox[e.ServiceId] = append(list[:i], list[i+1:]...)
					break
				}
			}
		case effects.DropJournalAndPopInbox:
			delete(m.journals, e.InvocationId)
			m.objects[e.ServiceId] = domain.UnlockedStatus()
			m.invocations[e.InvocationId] = domain.FreeStatus()
		}
	}
}

func (m *Memory) growJournal(iid domain.InvocationId, upTo domain.EntryIndex) {
	for domain.EntryIndex(len(m.journals[iid])) <= upTo {
		m.journals[iid] = append(m.journals[iid], domain.JournalEntry{})
	}
}

func (m *Memory) ensureStateMap(sid domain.ServiceId) map[string][]byte {
	if m.stateKeys[sid] == nil {
		m.stateKeys[sid] = make(map[string][]byte)
	}
	return m.stateKeys[sid]
}

// SeedInvocation installs an invocation status directly, bypassing Apply,
// for tests that need to start from an already-Invoked or Suspended state.
func (m *Memory) SeedInvocation(iid domain.InvocationId, status domain.InvocationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invocations[iid] = status
}

// SeedObjectLock installs a virtual object lock directly.
func (m *Memory) SeedObjectLock(sid domain.ServiceId, status domain.VirtualObjectStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[sid] = status
}
