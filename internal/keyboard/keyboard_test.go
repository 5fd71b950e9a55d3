package keyboard

import (
	"testing"

	"github.com/gwlsn/transcast/internal/events"
)

func TestTranslateControlKeys(t *testing.T) {
	tests := []struct {
		key  byte
		kind events.Kind
	}{
		{',', events.KindThreadsAdjust},
		{'<', events.KindThreadsAdjust},
		{'.', events.KindThreadsAdjust},
		{'>', events.KindThreadsAdjust},
		{'s', events.KindShutdownToggle},
		{'S', events.KindShutdownToggle},
		{'r', events.KindRefreshRequested},
		{0x03, events.KindImmediateInterrupt},
	}
	for _, tt := range tests {
		e, ok := translate(tt.key)
		if !ok || e.Kind != tt.kind {
			t.Fatalf("translate(%q) = %v, %v; want kind %s", tt.key, e, ok, tt.kind)
		}
	}

	if e, _ := translate(','); e.Threads != -1 {
		t.Fatal("',' must decrement threads")
	}
	if e, _ := translate('>'); e.Threads != +1 {
		t.Fatal("'>' must increment threads")
	}
}

func TestTranslateOverlayKeys(t *testing.T) {
	tests := []struct {
		key byte
		tab string
	}{
		{'c', "completed"},
		{'F', "failed"},
		{'m', "metadata"},
		{'e', "errors"},
		{'l', "logs"},
		{'T', "threads"},
		{'\t', "cycle"},
		{'[', "logs-prev-page"},
		{']', "logs-next-page"},
		{0x1b, "close"},
	}
	for _, tt := range tests {
		e, ok := translate(tt.key)
		if !ok || e.Kind != events.KindOverlayTab || e.Message != tt.tab {
			t.Fatalf("translate(%q) = %+v, want overlay %q", tt.key, e, tt.tab)
		}
	}
}

func TestTranslateIgnoresUnmappedKeys(t *testing.T) {
	for _, key := range []byte{'x', 'q', '1', ' '} {
		if _, ok := translate(key); ok {
			t.Fatalf("key %q must not produce an event", key)
		}
	}
}
