package utils

import "testing"

func TestIsUUID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"6f1c2a4e-8b1d-4c3e-9f2a-1b2c3d4e5f60", true},
		{"6F1C2A4E-8B1D-4C3E-9F2A-1B2C3D4E5F60", true},
		{"", false},
		{"42", false},
		{"6f1c2a4e8b1d4c3e9f2a1b2c3d4e5f60", false},
		{"urn:uuid:6f1c2a4e-8b1d-4c3e-9f2a-1b2c3d4e5f60", false},
		{"6f1c2a4e-8b1d-4c3e-9f2a-1b2c3d4e5fzz", false},
	}

	for _, tt := range tests {
		if got := IsUUID(tt.in); got != tt.want {
			t.Errorf("IsUUID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
