package validation

import (
	"errors"
	"testing"
)

type request struct {
	Name  string   `json:"signer_display_name" validate:"required"`
	Roles []string `json:"required_roles" validate:"required,min=1,unique"`
}

func TestValidator_Struct(t *testing.T) {
	v := New()

	if err := v.Struct(request{Name: "Doe", Roles: []string{"Member"}}); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	cases := []struct {
		name  string
		req   request
		field string
	}{
		{"missing name", request{Roles: []string{"Member"}}, "signer_display_name"},
		{"missing roles", request{Name: "Doe"}, "required_roles"},
		{"duplicate roles", request{Name: "Doe", Roles: []string{"Member", "Member"}}, "required_roles"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Struct(tc.req)
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fe.Field != tc.field || fe.Message == "" {
				t.Fatalf("unexpected field error %+v", fe)
			}
		})
	}

	if New() != v {
		t.Fatalf("expected a single shared validator")
	}
}
