package profile

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     GenerationRequest
		field   string
		wantErr bool
	}{
		{"valid appraiser", NewRequest("a1", Appraiser, nil), "", false},
		{"valid location", NewRequest("loc-9", Location, map[string]string{"city": "Austin"}), "", false},
		{"empty id", NewRequest("  ", Appraiser, nil), "entityId", true},
		{"path id", NewRequest("../etc", Appraiser, nil), "entityId", true},
		{"unknown type", NewRequest("a1", EntityType("dealer"), nil), "entityType", true},
		{"long override", NewRequest("a1", Appraiser, nil).WithOverride(strings.Repeat("x", MaxPromptOverride+1)), "prompt", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
		})
	}
}

func TestRequest_CopiesAttributes(t *testing.T) {
	attrs := map[string]string{"style": "modern"}
	req := NewRequest("a1", Appraiser, attrs)
	attrs["style"] = "antique"
	if req.Attr("style") != "modern" {
		t.Errorf("expected request to keep its own attributes, got %q", req.Attr("style"))
	}

	forced := req.WithForce(true)
	forced.Attributes["style"] = "rustic"
	if req.Attr("style") != "modern" || req.Force {
		t.Error("expected WithForce to leave the original untouched")
	}
}

func TestAttr_CaseInsensitive(t *testing.T) {
	req := NewRequest("a1", Appraiser, map[string]string{"Specialization": " Coins "})
	if got := req.Attr("specialization"); got != "Coins" {
		t.Errorf("expected Coins, got %q", got)
	}
}

func TestAttr_CaseDuplicates(t *testing.T) {
	r := NewRequest("a1", Appraiser, map[string]string{"Gender": "male", "gender": "female"})
	for range 100 {
		if got := r.Attr("gender"); got != "female" {
			t.Fatalf("expected exact key value female, got %q", got)
		}
	}

	r = NewRequest("a1", Appraiser, map[string]string{"Gender": "male", "GENDER": "female"})
	for range 100 {
		if got := r.Attr("gender"); got != "female" {
			t.Fatalf("expected lexically smallest key GENDER to win, got %q", got)
		}
	}
}

func TestParseEntityType(t *testing.T) {
	if got, ok := ParseEntityType(" Appraiser "); !ok || got != Appraiser {
		t.Errorf("expected appraiser, got %q ok=%v", got, ok)
	}
	if _, ok := ParseEntityType("gallery"); ok {
		t.Error("expected gallery to be rejected")
	}
}
