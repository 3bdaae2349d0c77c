package humanize

import "testing"

func TestBytes(t *testing.T) {
	for _, tt := range []struct {
		bytes uint64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1 MiB"},
		{2048 * 512, "1 MiB"},
		{100 * 1024 * 1024 * 1024, "100 GiB"},
		{(1<<33 + 4096) * 512, "4.0 TiB"},
		{3 << 50, "3 PiB"},
		{5 << 60, "5120 PiB"},
	} {
		if got := Bytes(tt.bytes); got != tt.want {
			t.Errorf("Bytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
