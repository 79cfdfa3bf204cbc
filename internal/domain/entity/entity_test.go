package entity

import (
	"errors"
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	for _, raw := range []string{"Medical", "AA&E", "Member", "ArmsOfficer", "CommandingOfficer"} {
		r, err := ParseRole(raw)
		if err != nil || string(r) != raw {
			t.Fatalf("ParseRole(%q) = %q, %v", raw, r, err)
		}
	}
	for _, raw := range []string{"", "medical", "AAE", "Chaplain"} {
		if _, err := ParseRole(raw); !errors.Is(err, ErrUnknownRole) {
			t.Fatalf("ParseRole(%q) expected ErrUnknownRole, got %v", raw, err)
		}
	}

	if _, err := ParseRoles([]string{"Member", "Nobody"}); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ParseRoles to reject unknown role, got %v", err)
	}
}

func TestLookupSignatureField(t *testing.T) {
	cases := []struct {
		form  FormType
		role  Role
		field string
	}{
		{FormTypeAAEScreening, RoleMedical, "MedicalReviewerSignature"},
		{FormTypeAAEScreening, RoleAAE, "AAEScreeningOfficialSignature"},
		{FormTypeDD2760, RoleMember, "MemberSignature"},
		{FormTypeDD2760, RoleCommandingOfficer, "CommanderSignature"},
		{FormTypeNavpers3591, RoleArmsOfficer, "RangeSafetyOfficerSignature"},
		{FormTypeNavpers3591, RoleCommandingOfficer, "CommandingOfficerSignature"},
	}
	for _, tc := range cases {
		f := LookupSignatureField(tc.form, tc.role)
		if f.FieldName != tc.field || f.Page != 1 || f.Purpose == "" {
			t.Fatalf("%s/%s: unexpected field %+v", tc.form, tc.role, f)
		}
	}

	f := LookupSignatureField("UNKNOWN_FORM", RoleMedical)
	if f.FieldName != "" || f.Page != 1 || f.Purpose != "Signed as Medical" {
		t.Fatalf("unexpected fallback %+v", f)
	}
}

func TestSignatureQueueItem_Clone(t *testing.T) {
	item := &SignatureQueueItem{
		ID:             "a",
		RequiredRoles:  []Role{RoleMedical, RoleAAE},
		CompletedRoles: []Role{RoleMedical},
	}
	c := item.Clone()
	c.CompletedRoles = append(c.CompletedRoles, RoleAAE)
	c.RequiredRoles[0] = RoleMember

	if len(item.CompletedRoles) != 1 || item.RequiredRoles[0] != RoleMedical {
		t.Fatalf("clone shares state with original: %+v", item)
	}
}

func TestQueueStatusAndOutcome(t *testing.T) {
	if !QueueStatusReturned.Valid() || QueueStatus("Lost").Valid() {
		t.Fatalf("unexpected status validity")
	}
	for kind, done := range map[OutcomeKind]bool{
		OutcomeNoChange:      false,
		OutcomeRejected:      false,
		OutcomeSignedPending: true,
		OutcomeCompleted:     true,
	} {
		if (&SignOutcome{Kind: kind}).Done() != done {
			t.Fatalf("%s: Done() != %v", kind, done)
		}
	}
}

func TestNewQueueEvent_Snapshot(t *testing.T) {
	item := &SignatureQueueItem{ID: "a", CompletedRoles: []Role{RoleMember}, Status: QueueStatusCompleted}
	ev := NewQueueEvent(QueueEventCompleted, item, time.Now())
	item.CompletedRoles[0] = RoleMedical

	if ev.Data.CompletedRoles[0] != RoleMember || ev.Data.Status != QueueStatusCompleted {
		t.Fatalf("event must not alias the item: %+v", ev.Data)
	}
}
