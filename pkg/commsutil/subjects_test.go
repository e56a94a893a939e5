package commsutil

import "testing"

func TestBuildCallSubject(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		want     string
	}{
		{"basic", "unity", "native.unity.call"},
		{"dotted", "unity.editor", "native.unity_editor.call"},
		{"empty", "", "native._.call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCallSubject(tt.platform)
			if got != tt.want {
				t.Errorf("BuildCallSubject(%q) = %q, want %q", tt.platform, got, tt.want)
			}
		})
	}
}

func TestBuildDeliverSubject(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		target   string
		want     string
	}{
		{"basic", "go", "client-1", "native.go.deliver.client-1"},
		{"wildcards stripped", "go", "a*b>c", "native.go.deliver.a_b_c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildDeliverSubject(tt.platform, tt.target)
			if got != tt.want {
				t.Errorf("BuildDeliverSubject(%q, %q) = %q, want %q", tt.platform, tt.target, got, tt.want)
			}
		})
	}
}

func TestBuildTrafficSubject(t *testing.T) {
	got := BuildTrafficSubject("AuthV4", "signIn")
	if got != "bridge.traffic.AuthV4.signIn" {
		t.Errorf("BuildTrafficSubject() = %q", got)
	}
}
