package access

import (
	"testing"

	"ecowatch.org/internal/domain"
)

var entities = []Entity{EntityUser, EntityZone, EntitySensor, EntityAction}

func TestPublicNeverWrites(t *testing.T) {
	actor := Actor{UserID: "p1", Role: domain.RolePublic}
	for _, e := range entities {
		for _, op := range []Operation{OpCreate, OpUpdate} {
			if Authorize(actor, op, Target{Entity: e, OwnerID: "p1", CreatorID: "p1"}) {
				t.Fatalf("public allowed to %s %s", op, e)
			}
		}
		if !Authorize(actor, OpRead, Target{Entity: e}) {
			t.Fatalf("public denied read on %s", e)
		}
	}
}

func TestAdminAllowedEverything(t *testing.T) {
	actor := Actor{UserID: "a1", Role: domain.RoleAdmin}
	for _, e := range entities {
		for _, op := range []Operation{OpRead, OpCreate, OpUpdate} {
			if !Authorize(actor, op, Target{Entity: e, CreatorID: "someone-else"}) {
				t.Fatalf("admin denied %s %s", op, e)
			}
		}
	}
}

func TestGovernmentWritesZonesAndActionsOnly(t *testing.T) {
	actor := Actor{UserID: "g1", Role: domain.RoleGovernment}
	want := map[Entity]bool{EntityZone: true, EntityAction: true}
	for _, e := range entities {
		got := bool(Authorize(actor, OpUpdate, Target{Entity: e, CreatorID: "other"}))
		if got != want[e] {
			t.Fatalf("government update %s: got %v want %v", e, got, want[e])
		}
		if CanEverWrite(domain.RoleGovernment, e) != want[e] {
			t.Fatalf("CanEverWrite(government, %s) mismatch", e)
		}
	}
}

func TestFactoryWritesOwnActions(t *testing.T) {
	actor := Actor{UserID: "f1", Role: domain.RoleFactory}
	cases := []struct {
		name   string
		target Target
		want   Decision
	}{
		{"assignee", Target{Entity: EntityAction, OwnerID: "f1", CreatorID: "g1"}, Allow},
		{"creator", Target{Entity: EntityAction, OwnerID: "", CreatorID: "f1"}, Allow},
		{"stranger", Target{Entity: EntityAction, OwnerID: "f2", CreatorID: "g1"}, Deny},
		{"zone even if creator", Target{Entity: EntityZone, CreatorID: "f1"}, Deny},
		{"sensor", Target{Entity: EntitySensor, CreatorID: "f1"}, Deny},
	}
	for _, tc := range cases {
		if got := Authorize(actor, OpUpdate, tc.target); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
	if !Conditional(domain.RoleFactory, EntityAction) || Conditional(domain.RoleGovernment, EntityAction) {
		t.Fatalf("unexpected conditional classification")
	}
}

func TestInvalidActorDenied(t *testing.T) {
	if Authorize(Actor{Role: domain.RoleAdmin}, OpRead, Target{Entity: EntityZone}) {
		t.Fatalf("actor without user id allowed")
	}
	if Authorize(Actor{UserID: "x", Role: domain.Role("root")}, OpRead, Target{Entity: EntityZone}) {
		t.Fatalf("unknown role allowed")
	}
	if Authorize(Actor{UserID: "x", Role: domain.RoleAdmin}, Operation("delete"), Target{Entity: EntityZone}) {
		t.Fatalf("unknown operation allowed")
	}
}
