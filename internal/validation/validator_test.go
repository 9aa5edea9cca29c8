// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

package validation

import (
	"strings"
	"sync"
	"testing"
)

type testRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254,printable"`
	Purpose    string `json:"purpose" validate:"omitempty,purpose"`
	Signal     string `json:"signal" validate:"omitempty,oneof=pointer key scroll touch"`
	Limit      int    `json:"limit" validate:"gte=0,lte=1000"`
}

func TestGetValidator_Singleton(t *testing.T) {
	var wg sync.WaitGroup
	results := make(chan interface{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- GetValidator()
		}()
	}
	wg.Wait()
	close(results)

	first := GetValidator()
	for v := range results {
		if v != first {
			t.Fatal("GetValidator returned different instances")
		}
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	req := testRequest{Identifier: "a@b.com", Purpose: "door_knocking", Signal: "scroll", Limit: 50}
	if err := ValidateStruct(&req); err != nil {
		t.Errorf("ValidateStruct() = %v, want nil", err)
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		req   testRequest
		field string
		tag   string
	}{
		{"missing identifier", testRequest{}, "identifier", "required"},
		{"identifier too long", testRequest{Identifier: strings.Repeat("x", 255)}, "identifier", "max"},
		{"control character", testRequest{Identifier: "a\x00b"}, "identifier", "printable"},
		{"upper-case purpose", testRequest{Identifier: "x", Purpose: "Marketing"}, "purpose", "purpose"},
		{"purpose with dash", testRequest{Identifier: "x", Purpose: "door-knocking"}, "purpose", "purpose"},
		{"unknown signal", testRequest{Identifier: "x", Signal: "blink"}, "signal", "oneof"},
		{"limit too large", testRequest{Identifier: "x", Limit: 5000}, "limit", "lte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.req)
			if verr == nil {
				t.Fatal("expected validation error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors: %v", len(errs), verr)
			}
			if errs[0].Field() != tt.field || errs[0].Tag() != tt.tag {
				t.Errorf("error = %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.field, tt.tag)
			}
		})
	}
}

func TestDetailsUseJSONNames(t *testing.T) {
	verr := ValidateStruct(&testRequest{Purpose: "BAD", Limit: -1})
	if verr == nil {
		t.Fatal("expected validation error")
	}

	details := verr.Details()
	for _, field := range []string{"identifier", "purpose", "limit"} {
		if _, ok := details[field]; !ok {
			t.Errorf("details missing %q: %v", field, details)
		}
	}
	if details["identifier"] != "identifier is required" {
		t.Errorf("identifier message = %q", details["identifier"])
	}
	if !strings.Contains(verr.Error(), "; ") {
		t.Errorf("combined message = %q", verr.Error())
	}
}

func TestErrorMessages(t *testing.T) {
	verr := ValidateStruct(&testRequest{Identifier: strings.Repeat("x", 300)})
	if verr == nil {
		t.Fatal("expected validation error")
	}
	if got := verr.Errors()[0].Error(); got != "identifier must be at most 254 characters" {
		t.Errorf("message = %q", got)
	}

	verr = ValidateStruct(&testRequest{Identifier: "x", Signal: "blink"})
	if got := verr.Errors()[0].Error(); got != "signal must be one of: pointer key scroll touch" {
		t.Errorf("message = %q", got)
	}
}
