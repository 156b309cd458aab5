package domain

import "fmt"

// Gender is a closed enum validated by allow-list, not reflection.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ParseGender validates a raw input value against the allowed set.
func ParseGender(value string) (Gender, error) {
	switch Gender(value) {
	case GenderMale, GenderFemale, GenderOther:
		return Gender(value), nil
	}
	return "", fmt.Errorf("%w: unknown gender %q", ErrInvalidValue, value)
}

// Scope is a bit-set of permissions granted to a user.
type Scope uint64

const (
	ScopeBasicUser Scope = 1 << iota
	ScopeAdmin
)

// Has reports whether all bits of flag are set.
func (s Scope) Has(flag Scope) bool {
	return s&flag == flag
}

// With returns the scope with flag added.
func (s Scope) With(flag Scope) Scope {
	return s | flag
}

// Without returns the scope with flag removed.
func (s Scope) Without(flag Scope) Scope {
	return s &^ flag
}
