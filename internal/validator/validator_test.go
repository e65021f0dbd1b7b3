package validator

import "testing"

type chatRequest struct {
	Message string `json:"message" validate:"required,max=10"`
}

func TestValidateUsesJSONNames(t *testing.T) {
	v := New()

	errs := v.Validate(chatRequest{})
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
	if errs[0].Field != "message" || errs[0].Tag != "required" {
		t.Fatalf("unexpected error: %+v", errs[0])
	}
	if errs[0].Message != "message is required" {
		t.Fatalf("unexpected message: %q", errs[0].Message)
	}

	errs = v.Validate(chatRequest{Message: "this is far too long"})
	if len(errs) != 1 || errs[0].Tag != "max" {
		t.Fatalf("expected max error, got %v", errs)
	}

	if errs := v.Validate(chatRequest{Message: "ok"}); errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
}
