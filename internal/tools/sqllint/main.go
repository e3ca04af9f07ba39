// sqllint checks that every SQL string constant starts with a unique
// "--sql <uuid>" marker, which infra.SQLRunner relies on to tag query logs.
//
//	go run ./internal/tools/sqllint ./internal/sqlinline
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlKeywordPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with)\b`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

type statement struct {
	file   string
	name   string
	line   int
	marker string
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"./internal/sqlinline"}
	}
	os.Exit(run(targets, os.Stderr))
}

func run(targets []string, stderr io.Writer) int {
	var stmts []statement
	for _, target := range targets {
		found, err := collect(target)
		if err != nil {
			fmt.Fprintf(stderr, "sqllint: %v\n", err)
			return 1
		}
		stmts = append(stmts, found...)
	}

	violations := check(stmts)
	if len(violations) == 0 {
		return 0
	}
	fmt.Fprintln(stderr, "sqllint: invalid SQL markers")
	for _, v := range violations {
		fmt.Fprintf(stderr, "  %s:%d %s (%s)\n", v.file, v.line, v.message, v.name)
	}
	return 1
}

// collect returns the SQL string constants of every non-test Go file under target.
func collect(target string) ([]statement, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return parseFile(target)
	}
	var stmts []statement
	err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != target && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") || d.Name() == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		found, err := parseFile(path)
		if err != nil {
			return err
		}
		stmts = append(stmts, found...)
		return nil
	})
	return stmts, err
}

func parseFile(path string) ([]statement, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	var stmts []statement
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil || !sqlKeywordPattern.MatchString(raw) {
				continue
			}
			name := ""
			if i < len(vs.Names) && vs.Names[i] != nil {
				name = vs.Names[i].Name
			}
			stmts = append(stmts, statement{
				file:   path,
				name:   name,
				line:   fset.Position(bl.Pos()).Line,
				marker: firstLine(raw),
			})
		}
		return true
	})
	return stmts, nil
}

// check reports statements without a valid marker and markers used twice.
func check(stmts []statement) []violation {
	var violations []violation
	seen := make(map[string]statement, len(stmts))
	for _, s := range stmts {
		if !uuidMarkerPattern.MatchString(s.marker) {
			violations = append(violations, violation{file: s.file, line: s.line, name: s.name, message: "missing or invalid --sql <uuid> marker"})
			continue
		}
		if first, dup := seen[s.marker]; dup {
			violations = append(violations, violation{file: s.file, line: s.line, name: s.name, message: "marker already used by " + first.name})
			continue
		}
		seen[s.marker] = s
	}
	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].file != violations[j].file {
			return violations[i].file < violations[j].file
		}
		return violations[i].line < violations[j].line
	})
	return violations
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}
