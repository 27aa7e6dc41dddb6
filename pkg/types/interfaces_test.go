package types

import "testing"

func TestCrdsValueOverridesByOutset(t *testing.T) {
	label := CrdsValueLabel{Kind: KindContactInfo, Origin: "K"}

	older := CrdsValue{
		Label:       label,
		WallclockMs: 200,
		ContactInfo: &ContactInfoData{Outset: 1},
	}
	newer := CrdsValue{
		Label:       label,
		WallclockMs: 100,
		ContactInfo: &ContactInfoData{Outset: 2},
	}

	if !newer.Overrides(older) {
		t.Error("higher outset should override despite lower wallclock")
	}
	if older.Overrides(newer) {
		t.Error("lower outset should not override higher outset")
	}
}

func TestCrdsValueOverridesByWallclock(t *testing.T) {
	label := CrdsValueLabel{Kind: KindContactInfo, Origin: "K"}

	v1 := CrdsValue{Label: label, WallclockMs: 100, ContactInfo: &ContactInfoData{Outset: 1}}
	v2 := CrdsValue{Label: label, WallclockMs: 200, ContactInfo: &ContactInfoData{Outset: 1}}

	if !v2.Overrides(v1) {
		t.Error("greater wallclock should override")
	}

	v3 := CrdsValue{Label: label, WallclockMs: 150, ContactInfo: &ContactInfoData{Outset: 1}}
	if v3.Overrides(v2) {
		t.Error("lesser wallclock should not override")
	}
}

func TestCrdsValueOverridesByContentHashTiebreak(t *testing.T) {
	label := CrdsValueLabel{Kind: KindVote, Origin: "K"}

	v1 := CrdsValue{Label: label, WallclockMs: 100, ContentHash: "aaa"}
	v2 := CrdsValue{Label: label, WallclockMs: 100, ContentHash: "bbb"}

	if !v2.Overrides(v1) {
		t.Error("greater content hash should win the tiebreak")
	}
	if v1.Overrides(v2) {
		t.Error("lesser content hash should lose the tiebreak")
	}
}

func TestNodeHealthFitnessScore(t *testing.T) {
	perfect := NodeHealth{CPU: 0, Memory: 0, Disk: 0, NetLatencyMs: 0, ErrorCount: 0}
	if got := perfect.FitnessScore(); got != 100 {
		t.Errorf("perfect health score = %v, want 100", got)
	}

	degraded := NodeHealth{CPU: 100, Memory: 100, Disk: 100, NetLatencyMs: 1000, ErrorCount: 1000}
	if got := degraded.FitnessScore(); got >= perfect.FitnessScore() {
		t.Errorf("degraded health score %v should be lower than perfect %v", got, perfect.FitnessScore())
	}
}

func TestBackendServerEligible(t *testing.T) {
	tests := []struct {
		name          string
		server        BackendServer
		circuitClosed bool
		want          bool
	}{
		{"healthy and closed", BackendServer{Active: true, HealthScore: 0.9}, true, true},
		{"draining", BackendServer{Active: true, Draining: true, HealthScore: 0.9}, true, false},
		{"inactive", BackendServer{Active: false, HealthScore: 0.9}, true, false},
		{"low health score", BackendServer{Active: true, HealthScore: 0.4}, true, false},
		{"circuit open", BackendServer{Active: true, HealthScore: 0.9}, false, false},
		{"boundary health score", BackendServer{Active: true, HealthScore: 0.5}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.server.Eligible(tt.circuitClosed); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMasterRoleString(t *testing.T) {
	tests := []struct {
		role MasterRole
		want string
	}{
		{RoleNone, "None"},
		{RoleRPC, "RPC"},
		{RoleLedger, "Ledger"},
		{RoleGossip, "Gossip"},
		{RoleShard, "Shard"},
		{RoleGlobal, "Global"},
	}

	for _, tt := range tests {
		if got := tt.role.String(); got != tt.want {
			t.Errorf("MasterRole(%d).String() = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestNodeStateString(t *testing.T) {
	tests := []struct {
		state NodeState
		want  string
	}{
		{Follower, "Follower"},
		{Candidate, "Candidate"},
		{Leader, "Leader"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("NodeState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
