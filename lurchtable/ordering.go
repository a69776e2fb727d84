package lurchtable

import "fmt"

// Ordering selects which global order, if any, a table maintains.
type Ordering uint8

const (
	// None keeps no order. Only valid for unbounded tables; Peek and the
	// Dequeue family return lurch.ErrUnsupported.
	None Ordering = iota
	// Insertion orders entries by when they were first added.
	Insertion
	// Modified orders entries by when they were added or last updated.
	Modified
	// Access orders entries by when they were added, updated or last read.
	Access
)

func (o Ordering) String() string {
	switch o {
	case None:
		return "none"
	case Insertion:
		return "insertion"
	case Modified:
		return "modified"
	case Access:
		return "access"
	default:
		return fmt.Sprintf("Ordering(%d)", uint8(o))
	}
}

// ParseOrdering is the inverse of Ordering.String.
func ParseOrdering(s string) (Ordering, error) {
	switch s {
	case "none", "":
		return None, nil
	case "insertion":
		return Insertion, nil
	case "modified":
		return Modified, nil
	case "access":
		return Access, nil
	default:
		return None, fmt.Errorf("lurchtable: unknown ordering %q", s)
	}
}
