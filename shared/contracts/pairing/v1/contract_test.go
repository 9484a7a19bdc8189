package v1

import "testing"

func TestEnvelopeValidate(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
		ok   bool
	}{
		{"artifact", Envelope{V: Version, Type: TypeArtifact}, true},
		{"session_state", Envelope{V: Version, Type: TypeSessionState}, true},
		{"heartbeat", Envelope{V: Version, Type: TypeHeartbeat}, true},
		{"missing version", Envelope{Type: TypeArtifact}, false},
		{"wrong version", Envelope{V: "v0", Type: TypeArtifact}, false},
		{"missing type", Envelope{V: Version}, false},
		{"unknown type", Envelope{V: Version, Type: "chat"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
