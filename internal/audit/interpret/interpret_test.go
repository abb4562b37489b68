package interpret

import (
	"testing"
)

func TestRenderEnrollment(t *testing.T) {
	out := Render("ENROLLMENT_CREATED", "Enrollment", map[string]any{
		"subject_code":    "MATH101",
		"section":         "A",
		"units":           float64(3),
		"enrollment_type": "REGULAR",
	})
	want := "Enrolled in MATH101 Section A (3 units, REGULAR)"
	if out.Sentence != want {
		t.Fatalf("sentence = %q, want %q", out.Sentence, want)
	}
	if len(out.Fields) != 0 {
		t.Fatalf("matched payload must not render fallback fields")
	}
}

func TestRenderEnrollmentWithoutExtras(t *testing.T) {
	out := Render("ENROLLMENT_CREATED", "Enrollment", map[string]any{
		"subject_code": "PHYS201",
		"section":      "B",
	})
	if out.Sentence != "Enrolled in PHYS201 Section B" {
		t.Fatalf("sentence = %q", out.Sentence)
	}
}

func TestRenderRegistrationTransferee(t *testing.T) {
	out := Render("REGISTRATION", "Registration", map[string]any{
		"program":       "BS Computer Science",
		"created_via":   "online portal",
		"is_transferee": true,
	})
	want := "Registered for the term under BS Computer Science via online portal (transferee)"
	if out.Sentence != want {
		t.Fatalf("sentence = %q, want %q", out.Sentence, want)
	}
}

func TestRenderPaymentBeatsTokenMatcher(t *testing.T) {
	// A LOGIN action carrying a full payment payload must still read as a
	// payment: key matchers run before the token matcher.
	out := Render("LOGIN", "Payment", map[string]any{
		"amount":         "1500.00",
		"payment_mode":   "CASH",
		"receipt_number": "OR-2024-001",
	})
	want := "Payment of 1500.00 received via CASH (Receipt #OR-2024-001)"
	if out.Sentence != want {
		t.Fatalf("sentence = %q, want %q", out.Sentence, want)
	}
}

func TestRenderGradeProposal(t *testing.T) {
	out := Render("GRADE_SUBMITTED", "Grade", map[string]any{
		"action":         "Submitted",
		"student":        "Dela Cruz, Juan",
		"proposed_grade": "1.75",
	})
	if out.Sentence != "Submitted proposed grade 1.75 for Dela Cruz, Juan" {
		t.Fatalf("sentence = %q", out.Sentence)
	}
}

func TestRenderUserCreation(t *testing.T) {
	out := Render("USER_CREATED", "User", map[string]any{
		"role":  "REGISTRAR",
		"email": "reg@meridian.local",
	})
	if out.Sentence != "Registered new REGISTRAR account for reg@meridian.local" {
		t.Fatalf("sentence = %q", out.Sentence)
	}
}

func TestRenderTokens(t *testing.T) {
	if out := Render("LOGIN", "User", map[string]any{}); out.Sentence != "Logged in" {
		t.Fatalf("login sentence = %q", out.Sentence)
	}
	if out := Render("LOGOUT", "User", nil); out.Sentence != "Logged out" {
		t.Fatalf("logout sentence = %q", out.Sentence)
	}
	if out := Render("DELETED", "Enrollment", nil); out.Sentence != "Enrollment record deleted" {
		t.Fatalf("deleted sentence = %q", out.Sentence)
	}
	if out := Render("DELETED", "", nil); out.Sentence != "Record deleted" {
		t.Fatalf("deleted without model = %q", out.Sentence)
	}
}

func TestRenderDiffBlockIsAdditive(t *testing.T) {
	out := Render("USER_UPDATED", "User", map[string]any{
		"role":  "PROFESSOR",
		"email": "prof@meridian.local",
		"changes": map[string]any{
			"status": map[string]any{"old": "PENDING", "new": "APPROVED"},
			"name":   "corrected spelling",
		},
	})
	if out.Sentence == "" {
		t.Fatalf("expected user creation sentence alongside diff")
	}
	if len(out.Diff) != 2 {
		t.Fatalf("expected 2 diff entries, got %d", len(out.Diff))
	}
	// Entries come sorted by field name.
	name, status := out.Diff[0], out.Diff[1]
	if name.Field != "Name" || name.Value != "corrected spelling" || name.Old != nil {
		t.Fatalf("unexpected plain entry %+v", name)
	}
	if status.Field != "Status" || status.Old == nil || status.New == nil {
		t.Fatalf("unexpected pair entry %+v", status)
	}
	if *status.Old != "PENDING" || *status.New != "APPROVED" {
		t.Fatalf("pair = %s -> %s", *status.Old, *status.New)
	}
	if len(out.Fields) != 0 {
		t.Fatalf("matched payload must not render fallback fields")
	}
}

func TestRenderFallbackExcludesDiffKeys(t *testing.T) {
	out := Render("SOMETHING_ELSE", "Thing", map[string]any{
		"reference_no": "RN-42",
		"total":        float64(12.5),
		"details": map[string]any{
			"remarks": "manual adjustment",
		},
	})
	if out.Sentence != "" {
		t.Fatalf("unmatched payload must not get a sentence, got %q", out.Sentence)
	}
	if len(out.Diff) != 1 || out.Diff[0].Field != "Remarks" {
		t.Fatalf("details block must render as diff, got %+v", out.Diff)
	}
	if len(out.Fields) != 2 {
		t.Fatalf("expected 2 fallback fields, got %+v", out.Fields)
	}
	if out.Fields[0].Field != "Reference No" || out.Fields[0].Value != "RN-42" {
		t.Fatalf("unexpected field %+v", out.Fields[0])
	}
	if out.Fields[1].Field != "Total" || out.Fields[1].Value != "12.5" {
		t.Fatalf("unexpected field %+v", out.Fields[1])
	}
}

func TestRenderDeterministic(t *testing.T) {
	payload := map[string]any{
		"b_key": "two",
		"a_key": "one",
		"c_key": "three",
	}
	first := Render("MISC", "Thing", payload)
	for i := 0; i < 10; i++ {
		again := Render("MISC", "Thing", payload)
		if len(again.Fields) != len(first.Fields) {
			t.Fatalf("field count changed between runs")
		}
		for j := range first.Fields {
			if again.Fields[j] != first.Fields[j] {
				t.Fatalf("field order changed between runs")
			}
		}
	}
	if first.Fields[0].Field != "A Key" {
		t.Fatalf("fields must sort by key, got %+v", first.Fields)
	}
}

func TestHumanize(t *testing.T) {
	cases := map[string]string{
		"permission_updated": "Permission Updated",
		"old_value":          "Old Value",
		"ip":                 "Ip",
		"receipt_number":     "Receipt Number",
	}
	for in, want := range cases {
		if got := Humanize(in); got != want {
			t.Fatalf("Humanize(%q) = %q, want %q", in, got, want)
		}
	}
}
