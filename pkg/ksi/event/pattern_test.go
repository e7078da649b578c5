package event

import "testing"

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid two part name", "completion:result", false},
		{"valid with underscore", "completion:internal_result", false},
		{"missing separator", "completion", true},
		{"empty domain", ":result", true},
		{"empty action", "completion:", true},
		{"three segments", "a:b:c", true},
		{"empty string", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		event   string
		want    bool
	}{
		{"exact match", "completion:result", "completion:result", true},
		{"exact mismatch", "completion:result", "completion:error", false},
		{"domain wildcard action", "completion:*", "completion:result", true},
		{"domain wildcard action mismatch", "completion:*", "agent:result", false},
		{"wildcard domain", "*:error", "completion:error", true},
		{"wildcard domain mismatch", "*:error", "completion:result", false},
		{"bare star matches everything", "*", "anything:at_all", true},
		{"segment prefix wildcard", "agent:status*", "agent:status_changed", true},
		{"segment prefix wildcard mismatch", "agent:status*", "agent:started", false},
		{"pattern without separator", "completion", "completion:result", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchPattern(tt.pattern, tt.event)
			if got != tt.want {
				t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.event, got, tt.want)
			}
		})
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"test:*", "completion:result"}

	if !MatchAny(patterns, "test:event") {
		t.Error("expected test:event to match test:*")
	}
	if !MatchAny(patterns, "completion:result") {
		t.Error("expected completion:result to match")
	}
	if MatchAny(patterns, "other:event") {
		t.Error("expected other:event not to match")
	}
	if MatchAny(nil, "test:event") {
		t.Error("expected no match against empty pattern list")
	}
}

func TestNewFromParent(t *testing.T) {
	parent := New("completion:internal_result", "agent_1", map[string]any{"status": "success"})

	child := NewFromParent(parent, "completion:result", map[string]any{"status": "success"})

	if child.ID == parent.ID {
		t.Error("child must have its own ID")
	}
	if child.CausationID() != parent.ID {
		t.Errorf("causation = %q, want parent ID %q", child.CausationID(), parent.ID)
	}
	if child.CorrelationID() != parent.CorrelationID() {
		t.Errorf("correlation = %q, want %q", child.CorrelationID(), parent.CorrelationID())
	}
	if child.Hops != parent.Hops+1 {
		t.Errorf("hops = %d, want %d", child.Hops, parent.Hops+1)
	}
	if child.Source != parent.Source {
		t.Errorf("source = %q, want %q", child.Source, parent.Source)
	}
}

func TestCloneIsolatesTopLevelMaps(t *testing.T) {
	e := New("test:event", "agent_1", map[string]any{"k": "v"})

	c := e.Clone()
	c.Data["k"] = "mutated"
	c.Context["extra"] = true

	if e.Data["k"] != "v" {
		t.Error("clone mutation leaked into original data")
	}
	if _, ok := e.Context["extra"]; ok {
		t.Error("clone mutation leaked into original context")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	e := New("test:event", "agent_1", map[string]any{"n": float64(3)})

	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != e.ID || got.Name != e.Name || got.Source != e.Source {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, e)
	}
	if got.Data["n"] != float64(3) {
		t.Errorf("data round trip mismatch: %v", got.Data)
	}
}
