package authz

import (
	"os"
	"path/filepath"
	"testing"
)

const testModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && r.act == p.act
`

func writeAuthzFixtures(t *testing.T, policy string) (modelPath string, policyPath string) {
	t.Helper()
	dir := t.TempDir()
	modelPath = filepath.Join(dir, "model.conf")
	policyPath = filepath.Join(dir, "policy.csv")
	if err := os.WriteFile(modelPath, []byte(testModel), 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if err := os.WriteFile(policyPath, []byte(policy), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return modelPath, policyPath
}

func TestModeFromEnv(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "")
	if mode, err := ModeFromEnv(); err != nil || mode != ModeEnforce {
		t.Fatalf("expected default enforce, got %q err %v", mode, err)
	}

	t.Setenv("AUTHZ_MODE", "shadow")
	if mode, err := ModeFromEnv(); err != nil || mode != ModeShadow {
		t.Fatalf("expected shadow, got %q err %v", mode, err)
	}

	t.Setenv("AUTHZ_MODE", "disabled")
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatalf("expected error for disabled without escape hatch")
	}
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "1")
	if mode, err := ModeFromEnv(); err != nil || mode != ModeDisabled {
		t.Fatalf("expected disabled, got %q err %v", mode, err)
	}

	t.Setenv("AUTHZ_MODE", "bogus")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatalf("expected error for invalid mode")
	}
}

func TestSubjectFromOrgType(t *testing.T) {
	if got := SubjectFromOrgType(" BANK "); got != SubjectBank {
		t.Fatalf("expected %q, got %q", SubjectBank, got)
	}
	if got := SubjectFromOrgType(""); got != SubjectAnonymous {
		t.Fatalf("expected %q, got %q", SubjectAnonymous, got)
	}
}

func TestAuthorizeEnforce(t *testing.T) {
	modelPath, policyPath := writeAuthzFixtures(t, "p, org:bank, operations.liquidation, write\n")
	a, err := NewAuthorizer(modelPath, policyPath, ModeEnforce)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}

	allowed, enforced, err := a.Authorize(SubjectBank, ObjectLiquidation, ActionWrite)
	if err != nil || !allowed || !enforced {
		t.Fatalf("expected allowed+enforced, got %v %v %v", allowed, enforced, err)
	}

	allowed, enforced, err = a.Authorize(SubjectClient, ObjectLiquidation, ActionWrite)
	if err != nil || allowed || !enforced {
		t.Fatalf("expected denied+enforced, got %v %v %v", allowed, enforced, err)
	}
}

func TestAuthorizeShadowNeverEnforces(t *testing.T) {
	modelPath, policyPath := writeAuthzFixtures(t, "p, org:warehouse, operations.delivery, write\n")
	a, err := NewAuthorizer(modelPath, policyPath, ModeShadow)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}

	allowed, enforced, err := a.Authorize(SubjectClient, ObjectDelivery, ActionWrite)
	if err != nil || allowed || enforced {
		t.Fatalf("expected denied+unenforced in shadow, got %v %v %v", allowed, enforced, err)
	}
}

func TestAuthorizeDisabledAllowsAll(t *testing.T) {
	modelPath, policyPath := writeAuthzFixtures(t, "")
	a, err := NewAuthorizer(modelPath, policyPath, ModeDisabled)
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}
	allowed, enforced, err := a.Authorize(SubjectAnonymous, ObjectTokens, ActionAdmin)
	if err != nil || !allowed || enforced {
		t.Fatalf("expected allowed+unenforced, got %v %v %v", allowed, enforced, err)
	}
}
