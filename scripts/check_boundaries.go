package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "gatherly"

// layerRule lists what one package of a bounded context may import. Allowed
// entries are service-relative package paths; a trailing "/..." admits the
// whole subtree.
type layerRule struct {
	allow      []string
	shared     bool
	thirdParty bool
}

// layerRules is keyed by the package directory relative to
// contexts/<context>/<service>. "" is the service root (module.go).
var layerRules = map[string]layerRule{
	"":                     {allow: []string{"..."}},
	"domain/entities":      {},
	"domain/errors":        {},
	"domain/services":      {allow: []string{"domain/entities", "domain/errors"}},
	"ports":                {allow: []string{"domain/entities"}, shared: true},
	"application":          {},
	"application/commands": {allow: []string{"application", "domain/...", "ports"}},
	"application/queries":  {allow: []string{"application", "domain/...", "ports"}},
	"application/workers":  {allow: []string{"application", "ports"}},
	"transport/http":       {},
	"adapters/http":        {allow: []string{"application/...", "domain/...", "ports", "transport/http"}},
	"adapters/memory":      {allow: []string{"domain/...", "ports"}, thirdParty: true},
	"adapters/postgres":    {allow: []string{"domain/...", "ports"}, thirdParty: true},
}

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

func main() {
	root := flag.String("root", ".", "repository root containing contexts/")
	flag.Parse()

	violations, checked, err := checkBoundaries(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boundary check failed: %v\n", err)
		os.Exit(2)
	}
	if len(violations) == 0 {
		fmt.Printf("boundary checks passed (%d files)\n", checked)
		return
	}

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

// checkBoundaries validates every non-test Go file under root/contexts and
// returns the violations sorted by file and line.
func checkBoundaries(root string) ([]violation, int, error) {
	var violations []violation
	checked := 0
	contextsDir := filepath.Join(root, "contexts")

	err := filepath.WalkDir(contextsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 4 {
			return nil
		}

		servicePrefix := strings.Join([]string{modulePath, "contexts", parts[1], parts[2]}, "/")
		layer := strings.Join(parts[3:len(parts)-1], "/")
		checked++
		violations = append(violations, validateFile(path, strings.Join(parts, "/"), layer, servicePrefix)...)
		return nil
	})
	if err != nil {
		return nil, checked, err
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
	return violations, checked, nil
}

func validateFile(path string, file string, layer string, servicePrefix string) []violation {
	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: file, Line: 1, Rule: "file must parse"}}
	}

	rule, known := layerRules[layer]
	if !known {
		return []violation{{File: file, Line: 1, Rule: fmt.Sprintf("package %q has no boundary rule", layer)}}
	}

	var violations []violation
	for _, imp := range parsed.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		if reason := checkImport(rule, importPath, servicePrefix); reason != "" {
			violations = append(violations, violation{
				File:   file,
				Line:   line,
				Import: importPath,
				Rule:   reason,
			})
		}
	}
	return violations
}

func checkImport(rule layerRule, importPath string, servicePrefix string) string {
	switch {
	case isStdlib(importPath):
		return ""
	case hasPrefix(importPath, modulePath+"/contexts"):
		if !hasPrefix(importPath, servicePrefix) {
			return "cross-module imports are forbidden"
		}
		if !allowsServiceImport(rule, strings.TrimPrefix(importPath, servicePrefix+"/")) {
			return "import is outside the layer allowlist"
		}
		return ""
	case hasPrefix(importPath, modulePath+"/internal/shared"):
		if !rule.shared {
			return "shared types are only reachable through ports"
		}
		return ""
	case hasPrefix(importPath, modulePath):
		return "contexts must not import runtime infrastructure"
	default:
		if !rule.thirdParty {
			return "third-party imports belong in adapters"
		}
		return ""
	}
}

func allowsServiceImport(rule layerRule, relative string) bool {
	for _, allowed := range rule.allow {
		if allowed == "..." {
			return true
		}
		if subtree, ok := strings.CutSuffix(allowed, "/..."); ok {
			if hasPrefix(relative, subtree) {
				return true
			}
			continue
		}
		if relative == allowed {
			return true
		}
	}
	return false
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first := importPath
	if idx := strings.Index(first, "/"); idx != -1 {
		first = first[:idx]
	}
	return !strings.Contains(first, ".")
}
