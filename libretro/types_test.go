package libretro

import (
	"testing"
)

func TestParseExtensions(t *testing.T) {
	tests := []struct {
		name     string
		list     string
		allowZip bool
		expected []string
	}{
		{"simple", "smc|sfc", false, []string{".smc", ".sfc"}},
		{"uppercase normalized", "SMC|Sfc", false, []string{".smc", ".sfc"}},
		{"zip elided", "nes|zip", false, []string{".nes"}},
		{"zip kept when allowed", "nes|zip", true, []string{".nes", ".zip"}},
		{"empty entries skipped", "a||b|", false, []string{".a", ".b"}},
		{"duplicates collapsed", "gb|GB|gb", false, []string{".gb"}},
		{"empty list", "", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseExtensions(tt.list, tt.allowZip)
			if len(got) != len(tt.expected) {
				t.Fatalf("got %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("ext %d = %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestIsExtensionValid(t *testing.T) {
	si := SystemInfo{Extensions: []string{".smc", ".sfc"}}

	tests := []struct {
		ext   string
		valid bool
	}{
		{".smc", true},
		{"smc", true},
		{".SMC", true},
		{"SFC", true},
		{".nes", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := si.IsExtensionValid(tt.ext); got != tt.valid {
			t.Errorf("IsExtensionValid(%q) = %v, want %v", tt.ext, got, tt.valid)
		}
	}
}

func TestIsExtensionValidEmptySetIsOptimistic(t *testing.T) {
	si := SystemInfo{}
	for _, ext := range []string{".smc", ".whatever", ""} {
		if !si.IsExtensionValid(ext) {
			t.Errorf("empty extension set should accept %q", ext)
		}
	}
}

func TestAllowsVFS(t *testing.T) {
	if (SystemInfo{NeedsFullPath: true}).AllowsVFS() {
		t.Error("needs_full_path core should not allow VFS")
	}
	if !(SystemInfo{NeedsFullPath: false}).AllowsVFS() {
		t.Error("buffer-capable core should allow VFS")
	}
}

func TestCStringRoundTrip(t *testing.T) {
	tests := []string{"", "snes9x", "with space"}
	for _, s := range tests {
		buf := cString(s)
		if buf[len(buf)-1] != 0 {
			t.Errorf("cString(%q) not NUL-terminated", s)
		}
		if got := goString(&buf[0]); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestGoStringNil(t *testing.T) {
	if goString(nil) != "" {
		t.Error("nil C string should decode as empty")
	}
}

func TestPixelFormatValid(t *testing.T) {
	tests := []struct {
		format PixelFormat
		valid  bool
	}{
		{PixelFormat0RGB1555, true},
		{PixelFormatXRGB8888, true},
		{PixelFormatRGB565, true},
		{PixelFormat(3), false},
		{PixelFormat(-1), false},
	}
	for _, tt := range tests {
		if got := tt.format.Valid(); got != tt.valid {
			t.Errorf("Valid(%d) = %v, want %v", tt.format, got, tt.valid)
		}
	}
}
