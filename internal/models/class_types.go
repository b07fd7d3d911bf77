// internal/models/class_types.go
package models

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxClassTypeNameLength = 100
	DefaultClassTypeColor  = "#2563eb"
)

var hexColorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
var classTypeNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ()&'/-]*$`)

func IsHexColor(value string) bool {
	return hexColorRegex.MatchString(strings.TrimSpace(value))
}

type ClassTypeInput struct {
	Name                   string `json:"name"`
	Description            string `json:"description"`
	DefaultDurationMinutes int64  `json:"default_duration_minutes"`
	Color                  string `json:"color"`
}

// Normalize trims the input and fills the default color.
func (in *ClassTypeInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Color = strings.TrimSpace(in.Color)
	if in.Color == "" {
		in.Color = DefaultClassTypeColor
	}
}

func (in ClassTypeInput) Validate() error {
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(in.Name) > maxClassTypeNameLength {
		return fmt.Errorf("name must be %d characters or fewer", maxClassTypeNameLength)
	}
	if !classTypeNameRegex.MatchString(in.Name) {
		return fmt.Errorf("name may only contain letters, numbers, spaces and ()&'/- characters")
	}
	if in.DefaultDurationMinutes <= 0 || in.DefaultDurationMinutes > 600 {
		return fmt.Errorf("default_duration_minutes must be between 1 and 600")
	}
	if !IsHexColor(in.Color) {
		return fmt.Errorf("color must be a 6-digit hex color like #AABBCC")
	}
	return nil
}
