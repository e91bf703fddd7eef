package adjudication

import "fmt"

// ReviewStatus is the per-annotation review state. Transitions:
// Unreviewed -> Reviewed (adjudicate), Unreviewed -> Skipped (event date),
// Skipped -> Unreviewed (event date removed). Reviewed is terminal.
type ReviewStatus int

const (
	Unreviewed ReviewStatus = iota
	Reviewed
	Skipped
)

func (s ReviewStatus) String() string {
	switch s {
	case Unreviewed:
		return "UNREVIEWED"
	case Reviewed:
		return "REVIEWED"
	case Skipped:
		return "SKIPPED"
	default:
		return fmt.Sprintf("ReviewStatus(%d)", int(s))
	}
}

func ParseReviewStatus(raw string) (ReviewStatus, error) {
	switch raw {
	case "UNREVIEWED":
		return Unreviewed, nil
	case "REVIEWED":
		return Reviewed, nil
	case "SKIPPED":
		return Skipped, nil
	default:
		return Unreviewed, fmt.Errorf("unknown review status %q", raw)
	}
}

func (s ReviewStatus) MarshalText() ([]byte, error) {
	switch s {
	case Unreviewed, Reviewed, Skipped:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
}

func (s *ReviewStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseReviewStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PatientStatus is derived from a State on demand and never stored.
type PatientStatus int

const (
	NoAnnotations PatientStatus = iota
	UnderReview
	ReviewedNoEvent
	ReviewedWithEvent
)

func (s PatientStatus) String() string {
	switch s {
	case NoAnnotations:
		return "NO_ANNOTATIONS"
	case UnderReview:
		return "UNDER_REVIEW"
	case ReviewedNoEvent:
		return "REVIEWED_NO_EVENT"
	case ReviewedWithEvent:
		return "REVIEWED_WITH_EVENT"
	default:
		return fmt.Sprintf("PatientStatus(%d)", int(s))
	}
}

func (s PatientStatus) MarshalText() ([]byte, error) {
	switch s {
	case NoAnnotations, UnderReview, ReviewedNoEvent, ReviewedWithEvent:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
}
