package logger

import "testing"

func TestLineRingBoundedAndOrdered(t *testing.T) {
	r := &lineRing{max: 3}
	for _, line := range []string{"a\n", "b\n", "c\n", "d\n"} {
		if _, err := r.Write([]byte(line)); err != nil {
			t.Fatal(err)
		}
	}

	lines := r.Lines(0, 3)
	if len(lines) != 3 || lines[0] != "b" || lines[2] != "d" {
		t.Fatalf("ring must keep the newest max lines oldest-first: %v", lines)
	}
}

func TestLineRingPartialWrites(t *testing.T) {
	r := &lineRing{max: 10}
	r.Write([]byte("hel"))
	r.Write([]byte("lo\nwor"))
	if got := r.Lines(0, 10); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("partial lines must only land once complete: %v", got)
	}
	r.Write([]byte("ld\n"))
	if got := r.Lines(0, 10); len(got) != 2 || got[1] != "world" {
		t.Fatalf("completed line missing: %v", got)
	}
}

func TestLineRingPagination(t *testing.T) {
	r := &lineRing{max: 10}
	for _, line := range []string{"1\n", "2\n", "3\n", "4\n", "5\n"} {
		r.Write([]byte(line))
	}

	page0 := r.Lines(0, 2)
	if len(page0) != 2 || page0[0] != "4" || page0[1] != "5" {
		t.Fatalf("page 0 must be the most recent lines: %v", page0)
	}
	page1 := r.Lines(2, 2)
	if len(page1) != 2 || page1[0] != "2" || page1[1] != "3" {
		t.Fatalf("page 1 wrong: %v", page1)
	}
	if got := r.Lines(10, 2); got != nil {
		t.Fatalf("past the buffer must return nil: %v", got)
	}
}
