package ot

// Transform returns a adjusted to apply after b, assuming a and b share
// the same base document state.
func Transform(a, b Operation) Operation {
	if a.IsNoop() || b.IsNoop() {
		return a
	}

	switch {
	case a.Kind == Insert && b.Kind == Insert:
		return transformInsertInsert(a, b)
	case a.Kind == Insert && b.Kind == Delete:
		return transformInsertDelete(a, b)
	case a.Kind == Delete && b.Kind == Insert:
		return transformDeleteInsert(a, b)
	case a.Kind == Delete && b.Kind == Delete:
		return transformDeleteDelete(a, b)
	default:
		return a
	}
}

// transformInsertInsert: the tie-break b.position == a.position shifts a
// right, so the already-accepted b deterministically wins the position.
func transformInsertInsert(a, b Operation) Operation {
	if b.Position <= a.Position {
		a.Position += Len(b.Text)
	}
	return a
}

func transformInsertDelete(a, b Operation) Operation {
	switch {
	case b.Position+b.Length <= a.Position:
		a.Position -= b.Length
	case b.Position < a.Position:
		a.Position = b.Position
	}
	return a
}

// transformDeleteInsert: the inserted text is never absorbed into a's
// delete range; deletes never expand.
func transformDeleteInsert(a, b Operation) Operation {
	if b.Position <= a.Position {
		a.Position += Len(b.Text)
	}
	return a
}

func transformDeleteDelete(a, b Operation) Operation {
	aEnd := a.Position + a.Length
	bEnd := b.Position + b.Length

	switch {
	case b.Position >= aEnd:
		return a
	case bEnd <= a.Position:
		a.Position -= b.Length
		return a
	default:
		overlap := min(aEnd, bEnd) - max(a.Position, b.Position)
		if overlap < 0 {
			overlap = 0
		}
		a.Length -= overlap
		a.Position = min(a.Position, b.Position)
		if a.Length <= 0 {
			return NewNoop()
		}
		return a
	}
}
