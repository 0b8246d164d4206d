package domain

import "testing"

func TestFullInvocationIdInvocationIdRoundTrip(t *testing.T) {
	fid := NewFullInvocationId("com.example.Greeter", "alice", "uuid-1")
	iid := fid.InvocationId()

	recombined := CombineFullInvocationId(fid.ServiceId, iid)
	if recombined != fid {
		t.Fatalf("expected round trip to reproduce %+v, got %+v", fid, recombined)
	}
}

func TestPartitionKeyRangeContains(t *testing.T) {
	r := PartitionKeyRange{Start: 100, End: 200}

	if !r.Contains(100) || !r.Contains(200) || !r.Contains(150) {
		t.Fatalf("expected range %s to contain its bounds and midpoint", r)
	}
	if r.Contains(99) || r.Contains(201) {
		t.Fatalf("expected range %s to reject out-of-range keys", r)
	}
}

func TestMaybeFullInvocationIdPrefersFull(t *testing.T) {
	fid := NewFullInvocationId("com.example.Greeter", "bob", "uuid-2")
	m := FromFull(fid)

	if m.InvocationId() != fid.InvocationId() {
		t.Fatalf("expected MaybeFullInvocationId to resolve to %s, got %s", fid.InvocationId(), m.InvocationId())
	}
}

func TestMaybeFullInvocationIdFallsBackToPartial(t *testing.T) {
	iid := InvocationId{PartitionKey: 42, InvocationUuid: "uuid-3"}
	m := FromPartial(iid)

	if m.InvocationId() != iid {
		t.Fatalf("expected partial id %s, got %s", iid, m.InvocationId())
	}
	if m.Full != nil {
		t.Fatalf("expected no full id to be set")
	}
}

func TestServiceIdPartitionKeyOfIsStable(t *testing.T) {
	sid := ServiceId{ServiceName: "com.example.Counter", Key: "shard-7"}

	first := sid.PartitionKeyOf()
	second := sid.PartitionKeyOf()
	if first != second {
		t.Fatalf("expected PartitionKeyOf to be deterministic, got %d then %d", first, second)
	}
}
