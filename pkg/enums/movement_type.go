package enums

import "fmt"

// MovementType classifies an inventory ledger entry.
type MovementType string

const (
	MovementTypeSale       MovementType = "sale"
	MovementTypeRestock    MovementType = "restock"
	MovementTypeAdjustment MovementType = "adjustment"
	MovementTypeReturn     MovementType = "return"
)

var validMovementTypes = []MovementType{
	MovementTypeSale,
	MovementTypeRestock,
	MovementTypeAdjustment,
	MovementTypeReturn,
}

// String implements fmt.Stringer.
func (t MovementType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known MovementType.
func (t MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseMovementType converts raw input into a MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
