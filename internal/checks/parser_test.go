package checks

import (
	"strings"
	"testing"
)

func TestParserFor(t *testing.T) {
	if _, ok := ParserFor("go-test").(*GoTestParser); !ok {
		t.Error("go-test should select GoTestParser")
	}
	if _, ok := ParserFor("unknown").(*GenericParser); !ok {
		t.Error("unknown parser should fall back to generic")
	}
	if !IsKnownParser("") || !IsKnownParser("generic") || IsKnownParser("eslint") {
		t.Error("IsKnownParser mismatch")
	}
	if got := strings.Join(ParserNames(), ","); got != "generic,go-test" {
		t.Errorf("ParserNames = %s", got)
	}
}

func TestGenericParser_Truncates(t *testing.T) {
	long := strings.Repeat("x", maxOutputLen+100)
	res := (&GenericParser{}).Parse(long, "boom", 2)

	if res.Passed {
		t.Fatal("non-zero exit should fail")
	}
	findings := res.Findings.(string)
	if !strings.HasPrefix(findings, "...(truncated)") || !strings.HasSuffix(findings, "boom") {
		t.Errorf("findings should keep the tail, got prefix %q", findings[:20])
	}
}

func TestGoTestParser_Pass(t *testing.T) {
	out := "ok  \texample.com/a\t0.012s\nok  \texample.com/b\t(cached)\n?   \texample.com/c\t[no test files]\n"
	res := (&GoTestParser{}).Parse(out, "", 0)

	if !res.Passed || res.Summary != "2 packages ok" {
		t.Errorf("got %+v", res)
	}
}

func TestGoTestParser_Failures(t *testing.T) {
	out := `--- FAIL: TestCheckout (0.00s)
    cart_test.go:12: total = 3, want 4
    --- FAIL: TestCheckout/discount (0.00s)
FAIL
FAIL	example.com/cart	0.010s
ok  	example.com/catalog	0.005s
FAIL
`
	res := (&GoTestParser{}).Parse(out, "", 1)

	if res.Passed {
		t.Fatal("expected failure")
	}
	f, ok := res.Findings.(GoTestFindings)
	if !ok {
		t.Fatalf("findings type %T", res.Findings)
	}
	if len(f.FailedTests) != 2 || f.FailedTests[0] != "TestCheckout" || f.FailedTests[1] != "TestCheckout/discount" {
		t.Errorf("failed tests = %v", f.FailedTests)
	}
	if len(f.FailedPackages) != 1 || f.FailedPackages[0] != "example.com/cart" {
		t.Errorf("failed packages = %v", f.FailedPackages)
	}
	if !strings.HasPrefix(res.Summary, "2 tests failed in 1 packages") {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestGoTestParser_BuildError(t *testing.T) {
	res := (&GoTestParser{}).Parse("", "# example.com/cart\ncart.go:4:2: undefined: Total", 1)

	if res.Passed {
		t.Fatal("build error should fail")
	}
	if !strings.Contains(res.Findings.(string), "undefined: Total") {
		t.Errorf("findings = %v", res.Findings)
	}
}
