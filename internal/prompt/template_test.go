package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender_SimpleVars(t *testing.T) {
	tmpl := "Hello {{name}}, you are the {{stage_id}} agent."
	result, err := Render(tmpl, Vars{"name": "Alice", "stage_id": "architect"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "Hello Alice, you are the architect agent."
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestRender_MissingVars(t *testing.T) {
	_, err := Render("{{a}} and {{b}} and {{a}}", Vars{})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "missing template variables: a, b" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRender_Conditionals(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars Vars
		want string
	}{
		{"present", "Start.{{#if notes}} Notes: {{notes}}.{{/if}} End.", Vars{"notes": "n1"}, "Start. Notes: n1. End."},
		{"absent", "Start.{{#if notes}} Notes: {{notes}}.{{/if}} End.", Vars{}, "Start. End."},
		{"empty", "A{{#if notes}}B{{/if}}C", Vars{"notes": ""}, "AC"},
		{"nested both", "{{#if a}}a{{#if b}}b{{/if}}{{/if}}", Vars{"a": "1", "b": "1"}, "ab"},
		{"nested outer only", "{{#if a}}a{{#if b}}b{{/if}}!{{/if}}", Vars{"a": "1"}, "a!"},
		{"nested inner only", "{{#if a}}a{{#if b}}b{{/if}}{{/if}}x", Vars{"b": "1"}, "x"},
		{"spaces in tags", "{{ #if a }}[{{ a }}]{{ /if }}", Vars{"a": "v"}, "[v]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.tmpl, tt.vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_MissingVarInsideSkippedBlockIsFine(t *testing.T) {
	got, err := Render("x{{#if a}}{{undefined}}{{/if}}y", Vars{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "xy" {
		t.Errorf("got %q", got)
	}
}

func TestRender_Malformed(t *testing.T) {
	if _, err := Render("a{{/if}}", Vars{}); err == nil || !strings.Contains(err.Error(), "dangling") {
		t.Errorf("expected dangling error, got %v", err)
	}
	if _, err := Render("{{#if a}}open", Vars{"a": "1"}); err == nil || !strings.Contains(err.Error(), "unclosed") {
		t.Errorf("expected unclosed error, got %v", err)
	}
}

func TestLoadTemplate_BuiltinFallback(t *testing.T) {
	content, name, err := LoadTemplate(t.TempDir(), "architect.md", "agent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "agent.md" {
		t.Errorf("name = %q, want agent.md", name)
	}
	if !strings.Contains(content, "{{stage_id}}") {
		t.Error("expected built-in agent template")
	}
}

func TestLoadTemplate_ProjectOverride(t *testing.T) {
	stateDir := t.TempDir()
	dir := TemplateDir(stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "architect.md"), []byte("custom {{stage_id}}"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, name, err := LoadTemplate(stateDir, "architect.md", "agent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "architect.md" || content != "custom {{stage_id}}" {
		t.Errorf("got %q from %q", content, name)
	}
}

func TestLoadTemplate_Errors(t *testing.T) {
	if _, _, err := LoadTemplate(t.TempDir(), "nope.md"); err == nil {
		t.Error("expected not found error")
	}
	if _, _, err := LoadTemplate(t.TempDir(), "../secrets.md"); err == nil {
		t.Error("expected path rejection")
	}
}

func TestInstallBuiltinTemplates(t *testing.T) {
	stateDir := t.TempDir()
	dir := TemplateDir(stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "qa.md"), []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	written, err := InstallBuiltinTemplates(stateDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != 1 || written[0] != "agent.md" {
		t.Errorf("written = %v, want [agent.md]", written)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "qa.md"))
	if string(data) != "mine" {
		t.Error("existing template was overwritten")
	}
}

func TestBuiltinTemplatesRender(t *testing.T) {
	vars := Vars{
		"stage_id":       "qa-planning",
		"project_type":   "greenfield",
		"phase":          "planning",
		"progress":       "54",
		"required_score": "95",
	}
	for _, name := range BuiltinNames() {
		out, err := Render(builtinTemplates[name], vars)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if !strings.Contains(out, "agentline stage complete qa-planning") {
			t.Errorf("%s: missing completion instructions:\n%s", name, out)
		}
	}
}
