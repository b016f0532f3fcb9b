package graph

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestOptional_AbsentVersusZero(t *testing.T) {
	var absent Optional[bool]
	if absent.Present() {
		t.Fatal("zero Optional must be absent")
	}
	if got := absent.OrElse(true); !got {
		t.Fatal("absent Optional should yield the fallback")
	}

	zero := Some(false)
	if v, ok := zero.Get(); !ok || v {
		t.Fatalf("expected present false, got %v (present=%v)", v, ok)
	}
	if zero.OrElse(true) {
		t.Fatal("present zero value must win over the fallback")
	}
}

func TestOptional_JSON(t *testing.T) {
	type holder struct {
		Volumes Optional[[]float32] `json:"volumes"`
		Rate    Optional[uint32]    `json:"rate"`
	}

	raw, err := json.Marshal(holder{Volumes: Some([]float32{}), Rate: None[uint32]()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"volumes":[],"rate":null}` {
		t.Fatalf("unexpected encoding: %s", raw)
	}

	var back holder
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if vols, ok := back.Volumes.Get(); !ok || len(vols) != 0 {
		t.Fatalf("expected present empty volumes, got %v (present=%v)", vols, ok)
	}
	if back.Rate.Present() {
		t.Fatal("null must decode as absent")
	}
}

func TestProperties_KeysAndClone(t *testing.T) {
	p := Properties{"node.name": "sink", "application.name": "player", "media.class": "Audio/Sink"}
	if got, want := p.Keys(), []string{"application.name", "media.class", "node.name"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	c := p.Clone()
	c["node.name"] = "changed"
	if p["node.name"] != "sink" {
		t.Fatal("clone must not share storage")
	}
	if Properties(nil).Clone() != nil {
		t.Fatal("clone of nil must stay nil")
	}
}

func TestSortedIndicesAndSubjects(t *testing.T) {
	profiles := map[int32]Profile{3: {}, -1: {}, 0: {}}
	if got := SortedIndices(profiles); !reflect.DeepEqual(got, []int32{-1, 0, 3}) {
		t.Fatalf("unexpected indices: %v", got)
	}

	md := Metadata{Properties: map[uint32]map[string]string{50: {}, 0: {}, 7: {}}}
	if got := md.SortedSubjects(); !reflect.DeepEqual(got, []uint32{0, 7, 50}) {
		t.Fatalf("unexpected subjects: %v", got)
	}
}
