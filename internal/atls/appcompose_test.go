package atls

import (
	"testing"
)

func TestAppCompose_MergeInjectsDefaults(t *testing.T) {
	merged := MergeWithDefaultAppCompose(map[string]any{"docker_compose_file": "services: {}"})
	if merged["runner"] != defaultAppComposeRunner {
		t.Fatalf("expected default runner, got %v", merged["runner"])
	}
	if _, ok := merged["allowed_envs"]; !ok {
		t.Fatalf("expected default allowed_envs to be injected")
	}
}

func TestAppCompose_MergePreservesUserValues(t *testing.T) {
	merged := MergeWithDefaultAppCompose(map[string]any{
		"runner":       "custom-runner",
		"allowed_envs": []any{"FOO"},
	})
	if merged["runner"] != "custom-runner" {
		t.Fatalf("user runner overwritten: %v", merged["runner"])
	}
	envs, ok := merged["allowed_envs"].([]any)
	if !ok || len(envs) != 1 || envs[0] != "FOO" {
		t.Fatalf("user allowed_envs overwritten: %v", merged["allowed_envs"])
	}
}

func TestAppCompose_Hash_KeyOrderInsensitive(t *testing.T) {
	a := AppCompose{"a": 1, "b": 2, "c": []any{"x", "y"}}
	b := AppCompose{"c": []any{"x", "y"}, "b": 2, "a": 1}

	ha, err := a.Hash()
	if err != nil {
		t.Fatalf("Hash a: %v", err)
	}
	hb, err := b.Hash()
	if err != nil {
		t.Fatalf("Hash b: %v", err)
	}
	if ha != hb {
		t.Fatalf("hash depends on key order: %x vs %x", ha, hb)
	}
}

func TestAppCompose_Hash_Idempotent(t *testing.T) {
	a := AppCompose{"docker_compose_file": "services:\n  app:\n    image: foo"}
	h1, err := a.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := a.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not idempotent: %x vs %x", h1, h2)
	}
}

func TestAppCompose_CanonicalJSON_NoHTMLEscaping(t *testing.T) {
	a := AppCompose{"cmd": "a && b > c"}
	out, err := a.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if containsEscaped(out) {
		t.Fatalf("canonical JSON escaped HTML-significant characters: %s", out)
	}
}

func containsEscaped(b []byte) bool {
	s := string(b)
	for _, esc := range []string{"\\u003c", "\\u003e", "\\u0026"} {
		if indexOf(s, esc) {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestAppCompose_DifferentValuesHashDifferently(t *testing.T) {
	a := AppCompose{"docker_compose_file": "one"}
	b := AppCompose{"docker_compose_file": "two"}
	ha, _ := a.Hash()
	hb, _ := b.Hash()
	if ha == hb {
		t.Fatalf("distinct compose objects hashed identically")
	}
}
