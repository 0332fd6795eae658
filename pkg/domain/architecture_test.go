package domain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// allowedThirdParty lists the only non-standard imports the domain layer may use.
var allowedThirdParty = map[string]struct{}{
	"github.com/google/uuid": {},
}

// TestDomainImportsStayPure enforces that the domain layer depends on the
// standard library and allowedThirdParty only, never on internal packages.
func TestDomainImportsStayPure(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("cannot get working dir: %v", err)
	}
	entries, err := os.ReadDir(wd)
	if err != nil {
		t.Fatalf("cannot read dir: %v", err)
	}

	violations := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		path := filepath.Join(wd, name)
		// #nosec G304 -- path is derived from controlled directory entries within the same package
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		for _, imp := range importPaths(string(data)) {
			if reason := forbiddenImport(imp); reason != "" {
				violations++
				t.Errorf("%s imports %s: %s", name, imp, reason)
			}
		}
	}
	if violations > 0 {
		t.Fatalf("found %d forbidden imports in domain package", violations)
	}
}

func forbiddenImport(path string) string {
	if strings.Contains(path, "/internal/") || strings.HasPrefix(path, "slmcontrol/internal") {
		return "domain must not depend on internal packages"
	}
	first, _, _ := strings.Cut(path, "/")
	if !strings.Contains(first, ".") {
		return ""
	}
	if _, ok := allowedThirdParty[path]; ok {
		return ""
	}
	return "third-party dependency not in allowlist"
}

// importPaths scans import declarations line by line.
func importPaths(src string) []string {
	var out []string
	inBlock := false
	for _, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case inBlock && line == ")":
			inBlock = false
		case inBlock:
			if q := extractQuoted(line); q != "" {
				out = append(out, q)
			}
		case strings.HasPrefix(line, "import ("):
			inBlock = true
		case strings.HasPrefix(line, "import "):
			if q := extractQuoted(line); q != "" {
				out = append(out, q)
			}
		}
	}
	return out
}

// extractQuoted returns the first double-quoted string literal in a line, or "".
func extractQuoted(line string) string {
	start := strings.Index(line, "\"")
	if start == -1 {
		return ""
	}
	end := strings.Index(line[start+1:], "\"")
	if end == -1 {
		return ""
	}
	return line[start+1 : start+1+end]
}

func TestImportScanner(t *testing.T) {
	src := "package x\n\nimport \"fmt\"\n\nimport (\n\t\"context\"\n\tu \"github.com/google/uuid\"\n\t\"slmcontrol/internal/config\"\n\t\"github.com/redis/go-redis/v9\"\n)\n"
	got := importPaths(src)
	if len(got) != 5 {
		t.Fatalf("expected 5 imports, got %v", got)
	}
	want := map[string]bool{
		"fmt":                          false,
		"context":                      false,
		"github.com/google/uuid":       false,
		"slmcontrol/internal/config":   true,
		"github.com/redis/go-redis/v9": true,
	}
	for path, forbidden := range want {
		if (forbiddenImport(path) != "") != forbidden {
			t.Fatalf("forbiddenImport(%q) mismatch", path)
		}
	}
}
