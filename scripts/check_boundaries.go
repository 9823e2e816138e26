package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

// Boundary rules:
// - context code never imports runtime infrastructure (internal/platform, app).
// - cross-service imports may target ports, application or domain, never a
//   sibling's adapters.
// - domain stays on stdlib plus internal/shared.
// - application never imports adapters, not even its own.
func main() {
	violations := collectViolations("contexts")
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File == violations[j].File {
			if violations[i].Line == violations[j].Line {
				return violations[i].Import < violations[j].Import
			}
			return violations[i].Line < violations[j].Line
		}
		return violations[i].File < violations[j].File
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

func collectViolations(root string) []violation {
	var violations []violation

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		normalized := filepath.ToSlash(path)
		parts := strings.Split(normalized, "/")
		if len(parts) < 3 || parts[0] != "contexts" {
			return nil
		}

		// contexts/messaging-core/<service>/<layer>/... vs
		// contexts/ticket-flow/<layer>/...
		var layer string
		if parts[1] == "messaging-core" {
			if len(parts) < 4 {
				return nil
			}
			layer = parts[3]
		} else {
			layer = parts[2]
		}

		violations = append(violations, validateFile(path, normalized, layer)...)
		return nil
	})

	return violations
}

func validateFile(path string, normalizedPath string, layer string) []violation {
	var violations []violation

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return append(violations, violation{
			File: normalizedPath,
			Line: 1,
			Rule: "file must parse",
		})
	}

	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line

		if strings.HasPrefix(importPath, "porter/internal/platform/") ||
			strings.HasPrefix(importPath, "porter/internal/app/") {
			violations = append(violations, violation{
				File:   normalizedPath,
				Line:   line,
				Import: importPath,
				Rule:   "contexts must not import runtime infrastructure",
			})
		}

		if strings.HasPrefix(importPath, "porter/contexts/") &&
			strings.Contains(importPath, "/adapters/") &&
			layer != "adapters" && !strings.HasPrefix(normalizedPath, importDir(importPath)) {
			// module.go at the service root is the composition seam and may
			// wire its own adapters; everything else may not reach into them.
			if layer == "domain" || layer == "application" || layer == "ports" {
				violations = append(violations, violation{
					File:   normalizedPath,
					Line:   line,
					Import: importPath,
					Rule:   "only module wiring may import adapters",
				})
			}
		}

		if layer == "domain" && !isStdlib(importPath) &&
			!strings.HasPrefix(importPath, "porter/internal/shared/") {
			violations = append(violations, violation{
				File:   normalizedPath,
				Line:   line,
				Import: importPath,
				Rule:   "domain stays on stdlib plus internal/shared",
			})
		}
	}

	return violations
}

func importDir(importPath string) string {
	return strings.TrimPrefix(importPath, "porter/") + "/"
}

func isStdlib(importPath string) bool {
	if strings.HasPrefix(importPath, "porter/") {
		return false
	}
	first := importPath
	if idx := strings.Index(first, "/"); idx != -1 {
		first = first[:idx]
	}
	return !strings.Contains(first, ".")
}
