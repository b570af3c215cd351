package rbac

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateSuperuserAlwaysAllowed(t *testing.T) {
	// The admin role passes for every resource and action, even with an
	// empty permission map.
	for _, resource := range []string{"produits", "commandes", "roles", "inconnu"} {
		for _, action := range []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
			decision := Evaluate(SuperuserRole, resource, action, PermissionMap{})
			assert.True(t, decision.Allowed, "admin should be allowed to %s %s", action, resource)
		}
	}
}

func TestEvaluateDefaultDeny(t *testing.T) {
	perms := PermissionMap{
		"produits": {Read: true},
	}

	// No entry for the resource means every action is denied.
	for _, action := range []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
		decision := Evaluate("vendeur", "commandes", action, perms)
		assert.False(t, decision.Allowed)
		assert.NotEmpty(t, decision.Reason)
	}
}

func TestEvaluateFlagIndependence(t *testing.T) {
	tests := []struct {
		flags   Flags
		allowed map[Action]bool
	}{
		{
			flags:   Flags{Read: true},
			allowed: map[Action]bool{ActionRead: true, ActionCreate: false, ActionUpdate: false, ActionDelete: false},
		},
		{
			flags:   Flags{Create: true},
			allowed: map[Action]bool{ActionRead: false, ActionCreate: true, ActionUpdate: false, ActionDelete: false},
		},
		{
			flags:   Flags{Update: true, Delete: true},
			allowed: map[Action]bool{ActionRead: false, ActionCreate: false, ActionUpdate: true, ActionDelete: true},
		},
		{
			flags:   Flags{},
			allowed: map[Action]bool{ActionRead: false, ActionCreate: false, ActionUpdate: false, ActionDelete: false},
		},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("flags_%d", i), func(t *testing.T) {
			perms := PermissionMap{"produits": tt.flags}
			for action, want := range tt.allowed {
				decision := Evaluate("vendeur", "produits", action, perms)
				assert.Equal(t, want, decision.Allowed, "action %s", action)
			}
		})
	}
}

func TestEvaluateEmptyRoleDenied(t *testing.T) {
	perms := PermissionMap{"produits": AllowAll}
	decision := Evaluate("", "produits", ActionRead, perms)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "no role assigned", decision.Reason)
}

func TestEvaluateDenialIsNotAnError(t *testing.T) {
	// A nil map behaves like an empty one.
	decision := Evaluate("vendeur", "produits", ActionRead, nil)
	assert.False(t, decision.Allowed)
}

func TestParseAction(t *testing.T) {
	for _, valid := range []string{"create", "read", "update", "delete"} {
		action, ok := ParseAction(valid)
		assert.True(t, ok)
		assert.Equal(t, Action(valid), action)
	}

	for _, invalid := range []string{"", "READ", "list", "write"} {
		_, ok := ParseAction(invalid)
		assert.False(t, ok, "%q should not parse", invalid)
	}
}

func TestActionForMethod(t *testing.T) {
	assert.Equal(t, ActionRead, ActionForMethod("GET"))
	assert.Equal(t, ActionRead, ActionForMethod("HEAD"))
	assert.Equal(t, ActionCreate, ActionForMethod("POST"))
	assert.Equal(t, ActionUpdate, ActionForMethod("PUT"))
	assert.Equal(t, ActionUpdate, ActionForMethod("PATCH"))
	assert.Equal(t, ActionDelete, ActionForMethod("DELETE"))
}
