package entity

import (
	"fmt"

	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
)

// Label is one of the fixed wheat-leaf disease classes the model predicts.
type Label string

const (
	BrownRust  Label = "brown_rust"
	Healthy    Label = "healthy"
	Mildew     Label = "mildew"
	Septoria   Label = "septoria"
	YellowRust Label = "yellow_rust"
)

// Labels returns the full label set in lexicographic order. The order is
// relied on for deterministic arg-max tie-breaking.
func Labels() []Label {
	return []Label{BrownRust, Healthy, Mildew, Septoria, YellowRust}
}

func ParseLabel(s string) (Label, error) {
	switch Label(s) {
	case BrownRust, Healthy, Mildew, Septoria, YellowRust:
		return Label(s), nil
	}

	return "", fmt.Errorf("entity - ParseLabel - %q: %w", s, errs.ErrUnknownLabel)
}
