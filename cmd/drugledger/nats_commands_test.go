package main

import (
	"encoding/json"
	"testing"
	"time"

	natspkg "github.com/Payal2904/drug-verification-system-sub000/service/nats"
	"github.com/itchyny/gojq"
)

func TestJQFilterMatching(t *testing.T) {
	tests := []struct {
		name        string
		event       string
		jqFilter    string
		expectMatch bool
		expectErr   bool
	}{
		{
			name:        "batch_id match",
			event:       `{"batch_id": "BATCH-2026-001"}`,
			jqFilter:    `.batch_id == "BATCH-2026-001"`,
			expectMatch: true,
		},
		{
			name:        "batch_id mismatch",
			event:       `{"batch_id": "BATCH-2026-002"}`,
			jqFilter:    `.batch_id == "BATCH-2026-001"`,
			expectMatch: false,
		},
		{
			name:        "quantity threshold met",
			event:       `{"quantity": 500}`,
			jqFilter:    `.quantity > 100`,
			expectMatch: true,
		},
		{
			name:        "quantity threshold not met",
			event:       `{"quantity": 50}`,
			jqFilter:    `.quantity > 100`,
			expectMatch: false,
		},
		{
			name:        "transaction type match",
			event:       `{"transaction_type": "sale", "quantity": 10}`,
			jqFilter:    `.transaction_type == "sale"`,
			expectMatch: true,
		},
		{
			name:        "assurance string is truthy",
			event:       `{"assurance": "lower"}`,
			jqFilter:    `.assurance`,
			expectMatch: true,
		},
		{
			name:        "missing field is null and falsy",
			event:       `{"batch_id": "BATCH-2026-001"}`,
			jqFilter:    `.no_such_field`,
			expectMatch: false,
		},
		{
			name:        "contains on nested object",
			event:       `{"batch_id": "BATCH-2026-001", "transaction_type": "transfer"}`,
			jqFilter:    `. | contains({transaction_type: "transfer"})`,
			expectMatch: true,
		},
		{
			name:        "invalid JSON event",
			event:       `not-json`,
			jqFilter:    `.batch_id == "BATCH-2026-001"`,
			expectMatch: false,
			expectErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := gojq.Parse(tt.jqFilter)
			if err != nil {
				t.Fatalf("failed to parse jq filter: %v", err)
			}
			code, err := gojq.Compile(query)
			if err != nil {
				t.Fatalf("failed to compile jq filter: %v", err)
			}

			var input interface{}
			err = json.Unmarshal([]byte(tt.event), &input)
			if err != nil && !tt.expectErr {
				t.Fatalf("unexpected JSON parse error: %v", err)
			}
			if err != nil && tt.expectErr {
				return
			}

			matched := matchesFilters(input, []*gojq.Code{code})
			if matched != tt.expectMatch {
				t.Errorf("expected match=%v, got match=%v", tt.expectMatch, matched)
			}
		})
	}
}

func TestMatchesFilters_AllMustMatch(t *testing.T) {
	from := "MFG-001"
	event := &natspkg.TransactionEvent{
		Hash:            "00012ab34cd56ef78012ab34cd56ef78012ab34cd56ef78012ab34cd56ef7801",
		PreviousHash:    "0000000000000000000000000000000000000000000000000000000000000000",
		BlockNumber:     1,
		BatchID:         "BATCH-2026-001",
		FromEntityID:    &from,
		ToEntityID:      "DIST-001",
		Type:            "transfer",
		Quantity:        500,
		UnitPrice:       1299,
		TotalAmount:     649500,
		Assurance:       "full",
		TransactionDate: time.Now().UTC(),
		PublishedAt:     time.Now().UTC(),
	}

	input, err := eventToJQInput(event)
	if err != nil {
		t.Fatalf("failed to convert event: %v", err)
	}

	compile := func(filter string) *gojq.Code {
		query, err := gojq.Parse(filter)
		if err != nil {
			t.Fatalf("failed to parse %q: %v", filter, err)
		}
		code, err := gojq.Compile(query)
		if err != nil {
			t.Fatalf("failed to compile %q: %v", filter, err)
		}
		return code
	}

	// All filters match
	filters := []*gojq.Code{
		compile(`.batch_id == "BATCH-2026-001"`),
		compile(`.quantity >= 500`),
		compile(`.transaction_type == "transfer"`),
	}
	if !matchesFilters(input, filters) {
		t.Error("expected event to match all filters")
	}

	// One failing filter fails the whole set
	filters = append(filters, compile(`.quantity > 10000`))
	if matchesFilters(input, filters) {
		t.Error("expected event to fail when one filter fails")
	}

	// Filters run against the published field names
	if !matchesFilters(input, []*gojq.Code{compile(`.from_entity_id == "MFG-001"`)}) {
		t.Error("expected from_entity_id filter to match")
	}
	if matchesFilters(input, []*gojq.Code{compile(`.assurance == "lower"`)}) {
		t.Error("expected assurance filter to not match a full-assurance event")
	}

	// Empty filter set matches everything
	if !matchesFilters(input, nil) {
		t.Error("expected empty filter set to match")
	}
}

func TestIsTruthy(t *testing.T) {
	tests := []struct {
		name   string
		value  interface{}
		expect bool
	}{
		{name: "nil is falsy", value: nil, expect: false},
		{name: "false is falsy", value: false, expect: false},
		{name: "true is truthy", value: true, expect: true},
		// jq truthiness: only false and null are falsy
		{name: "zero is truthy", value: float64(0), expect: true},
		{name: "empty string is truthy", value: "", expect: true},
		{name: "empty object is truthy", value: map[string]interface{}{}, expect: true},
		{name: "empty array is truthy", value: []interface{}{}, expect: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTruthy(tt.value); got != tt.expect {
				t.Errorf("isTruthy(%v) = %v, want %v", tt.value, got, tt.expect)
			}
		})
	}
}

func TestEventToJQInput(t *testing.T) {
	event := &natspkg.TransactionEvent{
		Hash:            "000abc",
		PreviousHash:    "000def",
		BlockNumber:     7,
		BatchID:         "BATCH-2026-042",
		ToEntityID:      "PHARM-009",
		Type:            "sale",
		Quantity:        120,
		Assurance:       "lower",
		TransactionDate: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		PublishedAt:     time.Date(2026, 3, 14, 9, 0, 1, 0, time.UTC),
	}

	input, err := eventToJQInput(event)
	if err != nil {
		t.Fatalf("failed to convert event: %v", err)
	}

	obj, ok := input.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map input, got %T", input)
	}

	if obj["batch_id"] != "BATCH-2026-042" {
		t.Errorf("expected batch_id=BATCH-2026-042, got %v", obj["batch_id"])
	}
	if obj["transaction_type"] != "sale" {
		t.Errorf("expected transaction_type=sale, got %v", obj["transaction_type"])
	}
	// JSON numbers decode as float64
	if obj["block_number"] != float64(7) {
		t.Errorf("expected block_number=7, got %v", obj["block_number"])
	}
	if obj["assurance"] != "lower" {
		t.Errorf("expected assurance=lower, got %v", obj["assurance"])
	}
	// A nil from_entity_id is omitted entirely
	if _, present := obj["from_entity_id"]; present {
		t.Errorf("expected from_entity_id to be omitted, got %v", obj["from_entity_id"])
	}
}
