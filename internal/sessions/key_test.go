package sessions

import "testing"

func TestBuildSubjectKey(t *testing.T) {
	tests := []struct {
		name        string
		persona     string
		channel     string
		destination string
		user        string
		personaID   string
		want        string
	}{
		{"user", "Waibon", "line", "Ubot1", "U1", "p1", "agent:Waibon:line:Ubot1:direct:U1"},
		{"other channel", "Waibon", "line", "Ubot2", "U1", "p1", "agent:Waibon:line:Ubot2:direct:U1"},
		{"no destination", "Waibon", "line", "", "U1", "p1", "agent:Waibon:line:direct:U1"},
		{"anon", "Zeta", "line", "Ubot1", "", "p1", "agent:Zeta:anon:p1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildSubjectKey(tt.persona, tt.channel, tt.destination, tt.user, tt.personaID); got != tt.want {
				t.Errorf("BuildSubjectKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSessionKey(t *testing.T) {
	persona, rest := ParseSessionKey("agent:Waibe:line:group:C1")
	if persona != "Waibe" || rest != "line:group:C1" {
		t.Errorf("ParseSessionKey = %q, %q", persona, rest)
	}
	if p, r := ParseSessionKey("line:U1"); p != "" || r != "" {
		t.Errorf("non-canonical key parsed as %q, %q", p, r)
	}
	if !IsAnonSession(BuildAnonSubjectKey("Waibon", "x")) {
		t.Error("anon key not recognized")
	}
	if PeerKindFromGroup(true) != PeerGroup || PeerKindFromGroup(false) != PeerDirect {
		t.Error("PeerKindFromGroup mismatch")
	}
}
