// Package domain defines the wire-level data model shared by the partition
// command interpreter and its external collaborators: invocation and service
// identifiers, invocation lifecycle status, journal entries, timers, and the
// outbox/inbox message shapes. Nothing in this package talks to storage or
// the network; it is pure data.
package domain

import "fmt"

// PartitionKey is the 64-bit hash space a partition shards over.
type PartitionKey = uint64

// PartitionKeyRange is the inclusive interval of partition keys a partition
// owns. Every command targeting an invocation must carry a partition key
// within range; violating that is a bug in the routing layer upstream of
// the interpreter, not something the interpreter corrects.
type PartitionKeyRange struct {
	Start PartitionKey
	End   PartitionKey
}

// Contains reports whether key falls within the range, inclusive on both ends.
func (r PartitionKeyRange) Contains(key PartitionKey) bool {
	return key >= r.Start && key <= r.End
}

func (r PartitionKeyRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

// ServiceId identifies a virtual object: a service name plus an instance key.
// At most one invocation may hold the lock on a given ServiceId at a time.
type ServiceId struct {
	ServiceName string
	Key         string
}

func (s ServiceId) String() string { return s.ServiceName + "/" + s.Key }

// PartitionKeyOf hashes the object key into the partition key space. Real
// deployments derive this the same way the ingress/router does so that an
// object's invocations always land on the same partition.
func (s ServiceId) PartitionKeyOf() PartitionKey { return fnv1a(s.Key) }

// InvocationId is the stable, immutable-for-life handle of one invocation.
type InvocationId struct {
	PartitionKey   PartitionKey
	InvocationUuid string
}

func (i InvocationId) String() string {
	return fmt.Sprintf("inv-%d-%s", i.PartitionKey, i.InvocationUuid)
}

func (i InvocationId) IsZero() bool { return i.InvocationUuid == "" }

// FullInvocationId additionally carries the target service identity, so that
// the object a completed or canceled invocation belongs to is always known
// without an extra lookup. InvocationId is always derivable from it.
type FullInvocationId struct {
	ServiceId      ServiceId
	InvocationUuid string
}

// NewFullInvocationId builds a FullInvocationId from its parts.
func NewFullInvocationId(serviceName, key, invocationUuid string) FullInvocationId {
	return FullInvocationId{ServiceId: ServiceId{ServiceName: serviceName, Key: key}, InvocationUuid: invocationUuid}
}

// CombineFullInvocationId reattaches a ServiceId to an InvocationId, the
// inverse of InvocationId(). Used once the interpreter has looked up the
// owning service of an invocation known only by its bare id.
func CombineFullInvocationId(sid ServiceId, iid InvocationId) FullInvocationId {
	return FullInvocationId{ServiceId: sid, InvocationUuid: iid.InvocationUuid}
}

func (f FullInvocationId) PartitionKey() PartitionKey { return f.ServiceId.PartitionKeyOf() }

func (f FullInvocationId) InvocationId() InvocationId {
	return InvocationId{PartitionKey: f.PartitionKey(), InvocationUuid: f.InvocationUuid}
}

func (f FullInvocationId) String() string {
	return fmt.Sprintf("%s#%s", f.ServiceId, f.InvocationUuid)
}

// MaybeFullInvocationId is either a full id or a bare invocation id.
// TerminateInvocation commands may be issued with only a bare id (e.g. from
// an admin CLI that only knows the invocation uuid); the interpreter first
// scans the inbox for the id and, if it is not inboxed, looks up its
// invocation status by bare id.
type MaybeFullInvocationId struct {
	Full    *FullInvocationId
	Partial *InvocationId
}

// FromFull wraps a FullInvocationId.
func FromFull(fid FullInvocationId) MaybeFullInvocationId {
	return MaybeFullInvocationId{Full: &fid}
}

// FromPartial wraps a bare InvocationId.
func FromPartial(iid InvocationId) MaybeFullInvocationId {
	return MaybeFullInvocationId{Partial: &iid}
}

func (m MaybeFullInvocationId) InvocationId() InvocationId {
	if m.Full != nil {
		return m.Full.InvocationId()
	}
	if m.Partial != nil {
		return *m.Partial
	}
	return InvocationId{}
}

func (m MaybeFullInvocationId) String() string {
	switch {
	case m.Full != nil:
		return m.Full.String()
	case m.Partial != nil:
		return m.Partial.String()
	default:
		return "<unknown invocation>"
	}
}

// fnv1a is the hash behind ServiceId.PartitionKeyOf, and so behind every
// partition key the interpreter, ingress gateway, timers and shuffler route by.
func fnv1a(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
