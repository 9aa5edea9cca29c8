// CampaignGuard - Campaign CRM Access Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campaignguard

// Package validation validates API request structs with go-playground/validator.
//
// A single validator instance is shared process-wide; it caches struct
// metadata and reports fields by their JSON names. Two custom tags are
// registered:
//
//   - purpose: consent purpose names, ^[a-z][a-z0-9_]{0,63}$
//   - printable: no control characters (identifiers, subject and session IDs)
//
// Example:
//
//	type grantRequest struct {
//	    SubjectID string `json:"subject_id" validate:"required,max=254,printable"`
//	    Purpose   string `json:"purpose" validate:"required,purpose"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    // 400 with verr.Details()
//	}
package validation
