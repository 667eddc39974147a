package ot

import "testing"

func TestTransformAgainstNoopIsIdentity(t *testing.T) {
	ins := NewInsert(3, "hi", 1)
	if got := Transform(ins, NewNoop()); got != ins {
		t.Fatalf("Transform(ins, noop) = %+v, want %+v", got, ins)
	}

	del := NewDelete(2, 4, 1)
	if got := Transform(del, NewNoop()); got != del {
		t.Fatalf("Transform(del, noop) = %+v, want %+v", got, del)
	}
}

func TestConcurrentInsertsAtSamePosition(t *testing.T) {
	content := "AC"
	u1 := NewInsert(1, "B", 1)
	u2 := NewInsert(1, "X", 1)

	content = Apply(content, u1)
	if content != "ABC" {
		t.Fatalf("after u1: got %q, want %q", content, "ABC")
	}

	transformed := Transform(u2, u1)
	content = Apply(content, transformed)
	if content != "ABXC" {
		t.Fatalf("after transformed u2: got %q, want %q", content, "ABXC")
	}
	if transformed.Position != 2 {
		t.Fatalf("transformed position = %d, want 2", transformed.Position)
	}
}

func TestInsertShiftsLeftPastConcurrentDelete(t *testing.T) {
	content := "HELLO"
	u1 := NewDelete(1, 3, 1)
	u2 := NewInsert(4, "X", 1)

	content = Apply(content, u1)
	if content != "HO" {
		t.Fatalf("after u1: got %q, want %q", content, "HO")
	}

	transformed := Transform(u2, u1)
	if transformed.Position != 1 {
		t.Fatalf("transformed position = %d, want 1", transformed.Position)
	}
	content = Apply(content, transformed)
	if content != "HXO" {
		t.Fatalf("after transformed u2: got %q, want %q", content, "HXO")
	}
}

func TestFullyOverlappedDeleteCollapsesToNoop(t *testing.T) {
	content := "ABCDE"
	u1 := NewDelete(1, 3, 1)
	u2 := NewDelete(2, 2, 1)

	content = Apply(content, u1)
	if content != "AE" {
		t.Fatalf("after u1: got %q, want %q", content, "AE")
	}

	transformed := Transform(u2, u1)
	if !transformed.IsNoop() {
		t.Fatalf("transformed = %+v, want noop", transformed)
	}
}

func TestStaleOperationFoldsAcrossBuffer(t *testing.T) {
	buf := NewBuffer()
	buf.Append(8, NewInsert(0, "X", 7))
	buf.Append(9, NewInsert(5, "Y", 8))
	buf.Append(10, NewDelete(0, 1, 9))

	op := NewInsert(3, "Z", 7)
	transformed := op
	for _, entry := range buf.Since(7) {
		transformed = Transform(transformed, entry.Op)
	}

	// insert(0,"X") shifts 3 -> 4; insert(5,"Y") at 5 > 4 leaves unchanged;
	// delete(0,1) ends at 1 <= a.position(4), so it shifts left by 1 -> 3.
	if transformed.Position != 3 {
		t.Fatalf("transformed position = %d, want 3", transformed.Position)
	}
}

func TestApplyClampsOutOfRangePositions(t *testing.T) {
	content := "abc"
	got := Apply(content, NewInsert(99, "X", 1))
	if got != "abcX" {
		t.Fatalf("got %q, want %q", got, "abcX")
	}

	got = Apply(content, NewDelete(1, 99, 1))
	if got != "a" {
		t.Fatalf("got %q, want %q", got, "a")
	}
}

func TestApplyUsesUTF16Units(t *testing.T) {
	// U+1F600 is encoded as a UTF-16 surrogate pair (2 code units) but a
	// single rune; position 2 counts both code units and lands after the
	// emoji, where a rune-based offset would have used 1.
	content := "\U0001F600x"
	got := Apply(content, NewInsert(2, "A", 1))
	if got != "\U0001F600Ax" {
		t.Fatalf("got %q, want insert after surrogate pair", got)
	}
}
