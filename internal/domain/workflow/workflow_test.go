package workflow

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"qualtrack/internal/domain/entity"
)

var (
	t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func newItem(t *testing.T, required []entity.Role, completed ...entity.Role) *entity.SignatureQueueItem {
	t.Helper()
	item, err := NewQueueItem(NewItemParams{
		ID:             "item-1",
		DocumentPath:   "/docs/pending/form.pdf",
		FormType:       entity.FormTypeAAEScreening,
		RequiredRoles:  required,
		CompletedRoles: completed,
	}, t0)
	if err != nil {
		t.Fatalf("NewQueueItem: %v", err)
	}
	return item
}

// assertCurrentRoleInvariant checks that the current role is the first
// outstanding required role, or empty exactly when all roles signed.
func assertCurrentRoleInvariant(t *testing.T, item *entity.SignatureQueueItem) {
	t.Helper()
	var want entity.Role
	for _, r := range item.RequiredRoles {
		if !item.HasCompleted(r) {
			want = r
			break
		}
	}
	if item.CurrentRole != want {
		t.Fatalf("current role = %q, want %q (completed %v)", item.CurrentRole, want, item.CompletedRoles)
	}
	if (want == "") != (item.Status == entity.QueueStatusCompleted) {
		t.Fatalf("status %q inconsistent with current role %q", item.Status, item.CurrentRole)
	}
	for _, r := range item.CompletedRoles {
		if !item.Requires(r) {
			t.Fatalf("completed role %q is not required", r)
		}
	}
}

func TestAdvanceMedicalThenAAE(t *testing.T) {
	item := newItem(t, []entity.Role{entity.RoleMedical, entity.RoleAAE})

	if item.CurrentRole != entity.RoleMedical || item.Status != entity.QueueStatusPending {
		t.Fatalf("unexpected initial state: %q %q", item.CurrentRole, item.Status)
	}

	if err := AdvanceAfterSignature(item, entity.RoleMedical, t1); err != nil {
		t.Fatalf("advance medical: %v", err)
	}
	if item.CurrentRole != entity.RoleAAE {
		t.Errorf("current role = %q, want AA&E", item.CurrentRole)
	}
	if item.Status != entity.QueueStatusPending {
		t.Errorf("status = %q, want Pending", item.Status)
	}
	if !item.UpdatedAt.Equal(t1) {
		t.Errorf("updated_at not refreshed")
	}

	if err := AdvanceAfterSignature(item, entity.RoleAAE, t1); err != nil {
		t.Fatalf("advance aa&e: %v", err)
	}
	if item.CurrentRole != "" {
		t.Errorf("current role = %q, want empty", item.CurrentRole)
	}
	if item.Status != entity.QueueStatusCompleted {
		t.Errorf("status = %q, want Completed", item.Status)
	}
}

func TestAdvanceIsIdempotent(t *testing.T) {
	roles := []entity.Role{entity.RoleMedical, entity.RoleAAE}
	for _, role := range roles {
		once := newItem(t, roles)
		twice := newItem(t, roles)

		if err := AdvanceAfterSignature(once, role, t1); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 2; i++ {
			if err := AdvanceAfterSignature(twice, role, t1); err != nil {
				t.Fatal(err)
			}
		}

		if !reflect.DeepEqual(once.CompletedRoles, twice.CompletedRoles) {
			t.Errorf("%s: completed roles differ: %v vs %v", role, once.CompletedRoles, twice.CompletedRoles)
		}
		if once.CurrentRole != twice.CurrentRole || once.Status != twice.Status {
			t.Errorf("%s: state differs: %q/%q vs %q/%q", role, once.CurrentRole, once.Status, twice.CurrentRole, twice.Status)
		}
	}
}

func TestAdvanceInOrderCompletes(t *testing.T) {
	sequences := [][]entity.Role{
		{entity.RoleMedical},
		{entity.RoleMedical, entity.RoleAAE},
		{entity.RoleMember, entity.RoleCommandingOfficer},
		{entity.RoleArmsOfficer, entity.RoleMedical, entity.RoleAAE, entity.RoleCommandingOfficer},
	}

	for _, seq := range sequences {
		item := newItem(t, seq)
		for i, r := range seq {
			if err := AdvanceAfterSignature(item, r, t1); err != nil {
				t.Fatalf("%v: %v", seq, err)
			}
			assertCurrentRoleInvariant(t, item)
			if i < len(seq)-1 && item.Status != entity.QueueStatusPending {
				t.Fatalf("%v: completed early after %q", seq, r)
			}
		}
		if item.Status != entity.QueueStatusCompleted || item.CurrentRole != "" {
			t.Errorf("%v: final state %q/%q", seq, item.Status, item.CurrentRole)
		}
	}
}

func TestInvariantHoldsForOutOfOrderSignatures(t *testing.T) {
	seq := []entity.Role{entity.RoleArmsOfficer, entity.RoleMedical, entity.RoleAAE}
	orders := [][]entity.Role{
		{entity.RoleAAE, entity.RoleArmsOfficer, entity.RoleMedical},
		{entity.RoleMedical, entity.RoleMedical, entity.RoleAAE, entity.RoleArmsOfficer},
		{entity.RoleAAE, entity.RoleMedical, entity.RoleArmsOfficer},
	}

	for _, order := range orders {
		item := newItem(t, seq)
		assertCurrentRoleInvariant(t, item)
		for _, r := range order {
			if err := AdvanceAfterSignature(item, r, t1); err != nil {
				t.Fatal(err)
			}
			assertCurrentRoleInvariant(t, item)
		}
		if item.Status != entity.QueueStatusCompleted {
			t.Errorf("%v: expected completion", order)
		}
	}
}

func TestAdvanceRejectsRoleOutsideSequence(t *testing.T) {
	item := newItem(t, []entity.Role{entity.RoleMedical, entity.RoleAAE})
	before := item.Clone()

	err := AdvanceAfterSignature(item, entity.RoleCommandingOfficer, t1)
	if !errors.Is(err, entity.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if !reflect.DeepEqual(before, item) {
		t.Errorf("item mutated on rejected advance")
	}
}

func TestAdvanceOnCompletedItemIsNoOp(t *testing.T) {
	item := newItem(t, []entity.Role{entity.RoleMedical}, entity.RoleMedical)
	if item.Status != entity.QueueStatusCompleted {
		t.Fatalf("pre-seeded item should be completed, got %q", item.Status)
	}
	if err := AdvanceAfterSignature(item, entity.RoleMedical, t1); err != nil {
		t.Fatal(err)
	}
	if item.Status != entity.QueueStatusCompleted || len(item.CompletedRoles) != 1 {
		t.Errorf("completed item changed: %+v", item)
	}
}

func TestReturnToSpecificRole(t *testing.T) {
	item := newItem(t, []entity.Role{entity.RoleMedical, entity.RoleAAE}, entity.RoleMedical)
	if item.CurrentRole != entity.RoleAAE {
		t.Fatalf("expected current role AA&E, got %q", item.CurrentRole)
	}

	if err := ReturnToQueue(item, entity.RoleMedical, t1); err != nil {
		t.Fatal(err)
	}
	if item.CurrentRole != entity.RoleMedical {
		t.Errorf("current role = %q, want Medical", item.CurrentRole)
	}
	if item.Status != entity.QueueStatusReturned {
		t.Errorf("status = %q, want Returned", item.Status)
	}
	if !reflect.DeepEqual(item.CompletedRoles, []entity.Role{entity.RoleMedical}) {
		t.Errorf("completed roles changed: %v", item.CompletedRoles)
	}

	// Re-signing the returned role resolves forward again.
	if err := AdvanceAfterSignature(item, entity.RoleMedical, t1); err != nil {
		t.Fatal(err)
	}
	if item.CurrentRole != entity.RoleAAE || item.Status != entity.QueueStatusPending {
		t.Errorf("after re-sign: %q/%q", item.CurrentRole, item.Status)
	}
}

func TestReturnWithoutRoleKeepsCurrent(t *testing.T) {
	item := newItem(t, []entity.Role{entity.RoleMedical, entity.RoleAAE})
	if err := ReturnToQueue(item, "", t1); err != nil {
		t.Fatal(err)
	}
	if item.CurrentRole != entity.RoleMedical || item.Status != entity.QueueStatusReturned {
		t.Errorf("unexpected state %q/%q", item.CurrentRole, item.Status)
	}
}

func TestReturnRejections(t *testing.T) {
	done := newItem(t, []entity.Role{entity.RoleMedical}, entity.RoleMedical)
	if err := ReturnToQueue(done, entity.RoleMedical, t1); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	item := newItem(t, []entity.Role{entity.RoleMedical, entity.RoleAAE})
	if err := ReturnToQueue(item, entity.RoleMember, t1); !errors.Is(err, entity.ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
	if item.Status != entity.QueueStatusPending {
		t.Errorf("status changed on rejected return: %q", item.Status)
	}
}

func TestGetPreviousRole(t *testing.T) {
	required := []entity.Role{entity.RoleMedical, entity.RoleAAE}

	if got := GetPreviousRole(newItem(t, required, entity.RoleMedical)); got != entity.RoleMedical {
		t.Errorf("previous role = %q, want Medical", got)
	}
	if got := GetPreviousRole(newItem(t, required)); got != "" {
		t.Errorf("previous role = %q, want empty", got)
	}

	item := newItem(t, []entity.Role{entity.RoleArmsOfficer, entity.RoleMedical, entity.RoleAAE})
	_ = AdvanceAfterSignature(item, entity.RoleMedical, t1)
	_ = AdvanceAfterSignature(item, entity.RoleArmsOfficer, t1)
	if got := GetPreviousRole(item); got != entity.RoleArmsOfficer {
		t.Errorf("previous role = %q, want most recently completed ArmsOfficer", got)
	}
}

func TestNewQueueItemValidation(t *testing.T) {
	cases := []struct {
		name      string
		required  []entity.Role
		completed []entity.Role
		want      error
	}{
		{"empty", nil, nil, ErrNoRequiredRoles},
		{"unknown", []entity.Role{"Chaplain"}, nil, entity.ErrUnknownRole},
		{"duplicate", []entity.Role{entity.RoleMedical, entity.RoleMedical}, nil, ErrDuplicateRole},
		{"completed not required", []entity.Role{entity.RoleMedical}, []entity.Role{entity.RoleAAE}, entity.ErrUnknownRole},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewQueueItem(NewItemParams{RequiredRoles: tc.required, CompletedRoles: tc.completed}, t0)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewQueueItemPreSeeded(t *testing.T) {
	item := newItem(t, []entity.Role{entity.RoleMedical, entity.RoleAAE}, entity.RoleMedical, entity.RoleMedical)
	if len(item.CompletedRoles) != 1 {
		t.Errorf("duplicate pre-seeded role kept: %v", item.CompletedRoles)
	}
	assertCurrentRoleInvariant(t, item)
	if !item.CreatedAt.Equal(t0) || !item.UpdatedAt.Equal(t0) {
		t.Errorf("timestamps not set")
	}
}
