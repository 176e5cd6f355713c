package http

import (
	"reflect"
	"testing"
)

func TestWSFilter_DefaultsToEverything(t *testing.T) {
	f := newWSFilter()
	for _, s := range []string{"forest.analysis.analyze", "forest.analysis.alerts", "forest.analysis.forest-loss"} {
		if !f.wants(s) {
			t.Errorf("new connection should receive %s", s)
		}
	}
}

func TestWSFilter_NarrowAndWiden(t *testing.T) {
	f := newWSFilter()

	r := f.apply(wsRequest{Action: "subscribe", Endpoints: []string{"alerts", "analyze"}})
	if r.Type != "ack" || !reflect.DeepEqual(r.Endpoints, []string{"alerts", "analyze"}) {
		t.Fatalf("unexpected reply %+v", r)
	}
	if f.wants("forest.analysis.forest-loss") {
		t.Error("forest-loss should be filtered out")
	}

	r = f.apply(wsRequest{Action: "unsubscribe", Endpoints: []string{"analyze"}})
	if r.Type != "ack" || !reflect.DeepEqual(r.Endpoints, []string{"alerts"}) {
		t.Fatalf("unexpected reply %+v", r)
	}
	if f.wants("forest.analysis.analyze") || !f.wants("forest.analysis.alerts") {
		t.Error("filter not narrowed to alerts")
	}

	r = f.apply(wsRequest{Action: "subscribe"})
	if r.Type != "ack" || !reflect.DeepEqual(r.Endpoints, []string{"*"}) {
		t.Fatalf("empty subscribe should widen to all, got %+v", r)
	}
	if !f.wants("forest.analysis.forest-loss") {
		t.Error("expected every endpoint after widening")
	}
}

func TestWSFilter_Errors(t *testing.T) {
	f := newWSFilter()
	f.apply(wsRequest{Action: "subscribe", Endpoints: []string{"alerts"}})

	tests := []struct {
		name string
		req  wsRequest
		want string
	}{
		{"unknown endpoint", wsRequest{Action: "subscribe", Endpoints: []string{"geostore-by-id"}}, "unknown endpoint: geostore-by-id"},
		{"unknown action", wsRequest{Action: "replay"}, "unknown action: replay"},
		{"bare unsubscribe", wsRequest{Action: "unsubscribe"}, "unsubscribe needs endpoints"},
		{"last endpoint", wsRequest{Action: "unsubscribe", Endpoints: []string{"alerts"}}, "at least one endpoint must stay subscribed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := f.apply(tt.req)
			if r.Type != "error" || r.Error != tt.want {
				t.Errorf("got %+v, want error %q", r, tt.want)
			}
		})
	}
}

func TestWSFilter_UnsubscribeFromAll(t *testing.T) {
	f := newWSFilter()
	r := f.apply(wsRequest{Action: "unsubscribe", Endpoints: []string{"analyze"}})
	if r.Type != "ack" || !reflect.DeepEqual(r.Endpoints, []string{"alerts", "forest-loss"}) {
		t.Fatalf("unexpected reply %+v", r)
	}
	if f.wants("forest.analysis.analyze") {
		t.Error("analyze should be filtered out")
	}
}

func TestWSFilter_RejectedUnsubscribeKeepsFilter(t *testing.T) {
	f := newWSFilter()
	f.apply(wsRequest{Action: "subscribe", Endpoints: []string{"alerts"}})
	f.apply(wsRequest{Action: "unsubscribe", Endpoints: []string{"alerts"}})

	if !f.wants("forest.analysis.alerts") || f.wants("forest.analysis.analyze") {
		t.Error("a rejected unsubscribe must leave the filter unchanged")
	}
}
