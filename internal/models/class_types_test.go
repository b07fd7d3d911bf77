package models

import "testing"

func TestIsHexColor(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{name: "empty", value: "", want: false},
		{name: "missing_hash", value: "AABBCC", want: false},
		{name: "short_hex", value: "#ABC", want: false},
		{name: "invalid_char", value: "#AABBCG", want: false},
		{name: "lowercase_hex", value: "#aabbcc", want: true},
		{name: "trimmed_hex", value: "  #AABBCC  ", want: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsHexColor(test.value); got != test.want {
				t.Fatalf("IsHexColor(%q) = %t, want %t", test.value, got, test.want)
			}
		})
	}
}

func TestClassTypeInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   ClassTypeInput
		wantErr bool
	}{
		{name: "valid", input: ClassTypeInput{Name: "Mat Pilates", DefaultDurationMinutes: 55}},
		{name: "missing_name", input: ClassTypeInput{Name: "  ", DefaultDurationMinutes: 55}, wantErr: true},
		{name: "bad_name", input: ClassTypeInput{Name: "<b>Yoga</b>", DefaultDurationMinutes: 55}, wantErr: true},
		{name: "zero_duration", input: ClassTypeInput{Name: "Yoga"}, wantErr: true},
		{name: "bad_color", input: ClassTypeInput{Name: "Yoga", DefaultDurationMinutes: 60, Color: "red"}, wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			input := test.input
			input.Normalize()
			err := input.Validate()
			if test.wantErr && err == nil {
				t.Fatalf("expected error for %+v", test.input)
			}
			if !test.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestClassTypeInputNormalizeDefaultsColor(t *testing.T) {
	input := ClassTypeInput{Name: " Barre "}
	input.Normalize()
	if input.Name != "Barre" {
		t.Fatalf("name = %q", input.Name)
	}
	if input.Color != DefaultClassTypeColor {
		t.Fatalf("color = %q", input.Color)
	}
}
