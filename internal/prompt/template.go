// Package prompt renders agent briefing templates.
//
// Templates use {{name}} for substitution and {{#if name}}...{{/if}} for
// blocks that are kept only when name is set and non-empty. Blocks nest.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var tagRe = regexp.MustCompile(`\{\{\s*(#if\s+([a-zA-Z_][a-zA-Z0-9_]*)|/if|([a-zA-Z_][a-zA-Z0-9_]*))\s*\}\}`)

// Vars is a map of variable names to values for template rendering.
type Vars map[string]string

type frame struct {
	name    string
	keep    bool
	openTag string
}

// Render expands tmpl with vars. Every variable referenced inside a kept
// block must be present; missing ones are reported together.
func Render(tmpl string, vars Vars) (string, error) {
	var (
		out     strings.Builder
		stack   []frame
		missing []string
		seen    = map[string]bool{}
		last    int
	)
	keeping := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].keep
	}

	for _, loc := range tagRe.FindAllStringSubmatchIndex(tmpl, -1) {
		if keeping() {
			out.WriteString(tmpl[last:loc[0]])
		}
		last = loc[1]
		tag := tmpl[loc[0]:loc[1]]

		switch {
		case loc[4] >= 0:
			name := tmpl[loc[4]:loc[5]]
			stack = append(stack, frame{name: name, keep: keeping() && vars[name] != "", openTag: tag})
		case loc[6] >= 0:
			if !keeping() {
				continue
			}
			name := tmpl[loc[6]:loc[7]]
			val, ok := vars[name]
			if !ok {
				if !seen[name] {
					seen[name] = true
					missing = append(missing, name)
				}
				continue
			}
			out.WriteString(val)
		default:
			if len(stack) == 0 {
				return "", fmt.Errorf("dangling {{/if}} without matching {{#if}}")
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return "", fmt.Errorf("unclosed conditional block: %s", stack[len(stack)-1].openTag)
	}
	if keeping() {
		out.WriteString(tmpl[last:])
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return out.String(), nil
}

// TemplateDir is where a project keeps template overrides.
func TemplateDir(stateDir string) string {
	return filepath.Join(stateDir, "templates")
}

// LoadTemplate returns the first of names found in the project's template
// directory, falling back to the first built-in among names.
func LoadTemplate(stateDir string, names ...string) (string, string, error) {
	dir := TemplateDir(stateDir)
	for _, name := range names {
		if name != filepath.Base(name) {
			return "", "", fmt.Errorf("template name %q must not contain a path", name)
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return string(data), name, nil
		}
		if !os.IsNotExist(err) {
			return "", "", fmt.Errorf("read template %s: %w", name, err)
		}
	}
	for _, name := range names {
		if content, ok := builtinTemplates[name]; ok {
			return content, name, nil
		}
	}
	return "", "", fmt.Errorf("template not found: %s", strings.Join(names, ", "))
}

// BuiltinNames lists the bundled templates.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinTemplates))
	for n := range builtinTemplates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// InstallBuiltinTemplates copies the bundled templates into the project's
// template directory so they can be edited. Existing files are kept.
func InstallBuiltinTemplates(stateDir string) ([]string, error) {
	dir := TemplateDir(stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create templates dir: %w", err)
	}

	var written []string
	for _, name := range BuiltinNames() {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(builtinTemplates[name]), 0o644); err != nil {
			return written, fmt.Errorf("write template %q: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}
