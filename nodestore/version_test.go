package nodestore

import "testing"

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"", Version{}, false},
		{"0.11.0", Version{0, 11, 0}, false},
		{"0.13.1", Version{0, 13, 1}, false},
		{"0.13.1.1", Version{0, 13, 1}, false}, // fourth segment ignored
		{"1.0", Version{1, 0, 0}, false},
		{"nonsense", Version{}, true},
		{"1.x.0", Version{}, true},
	}
	for _, tc := range cases {
		got, err := ParseVersion(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseVersion(%q) err = %v, wantErr = %v", tc.in, err, tc.wantErr)
		}
		if err == nil && got != tc.want {
			t.Fatalf("ParseVersion(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestVersionAtLeast(t *testing.T) {
	v := Version{0, 11, 0}
	if !v.AtLeast(0, 11) || !v.AtLeast(0, 10) {
		t.Fatalf("0.11.0 should be at least 0.11 and 0.10")
	}
	if v.AtLeast(0, 12) || v.AtLeast(1, 0) {
		t.Fatalf("0.11.0 should not reach 0.12 or 1.0")
	}
	if !(Version{}).IsZero() {
		t.Fatalf("zero version should report IsZero")
	}
	if (Version{}).AtLeast(0, 11) {
		t.Fatalf("absent version must compare below 0.11")
	}
}
