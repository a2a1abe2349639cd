// Package trigger defines the kinds of distress signal that can start an alert.
package trigger

import (
	"fmt"
	"strings"
)

// Type is the source of an emergency trigger
type Type string

const (
	Button   Type = "button"
	Voice    Type = "voice"
	Hardware Type = "hardware"
)

// Parse converts a trigger name into a Type
func Parse(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown trigger type %q", s)
	}
	return t, nil
}

// Valid reports whether t is a known trigger type
func (t Type) Valid() bool {
	switch t {
	case Button, Voice, Hardware:
		return true
	}
	return false
}

func (t Type) String() string {
	return string(t)
}
