package builtin

import (
	"encoding/json"
	"testing"

	"github.com/oriys/partitiond/internal/domain"
)

func TestAwakeableIdRoundTrip(t *testing.T) {
	iid := domain.InvocationId{PartitionKey: 7, InvocationUuid: "uuid-xyz"}
	id := EncodeAwakeableId(iid, 3)

	gotIid, gotEntry, err := DecodeAwakeableId(id)
	if err != nil {
		t.Fatalf("DecodeAwakeableId: %v", err)
	}
	if gotIid != iid || gotEntry != 3 {
		t.Fatalf("expected (%s, 3), got (%s, %d)", iid, gotIid, gotEntry)
	}
}

func TestInvokeResolve(t *testing.T) {
	iid := domain.InvocationId{PartitionKey: 1, InvocationUuid: "u1"}
	argument, _ := json.Marshal(map[string]any{
		"awakeable_id": EncodeAwakeableId(iid, 5),
		"value":        json.RawMessage(`"hello"`),
	})

	res, err := Invoke("resolve", argument)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Target != iid || res.Entry != 5 {
		t.Fatalf("unexpected target %s entry %d", res.Target, res.Entry)
	}
	if res.Result.IsFailure() {
		t.Fatalf("expected a success completion")
	}
}

func TestInvokeUnknownMethod(t *testing.T) {
	argument, _ := json.Marshal(map[string]any{"awakeable_id": EncodeAwakeableId(domain.InvocationId{InvocationUuid: "u"}, 0)})

	if _, err := Invoke("frobnicate", argument); err == nil {
		t.Fatalf("expected an error for an unknown method")
	}
}
