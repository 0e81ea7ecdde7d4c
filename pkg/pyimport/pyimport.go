// SPDX-License-Identifier: MPL-2.0

// Package pyimport rewrites Python import statements so that scripts authored
// in a nested package tree keep importing correctly once every module is moved
// into a single flat directory.
//
// The rewrite is a pure text transform: it never looks at the filesystem.
//
//	from ..core.SomeManager import Client   ->  from SomeManager import Client
//	from ...core import constants           ->  import constants
//	from ..TIPCommon.smp_io import read     ->  from TIPCommon.smp_io import read
//	from .helpers import x                  ->  unchanged (same level)
//	import requests                         ->  unchanged (absolute)
package pyimport

import (
	"path/filepath"
	"strings"
)

var (
	// DefaultSharedLibraries are the shared library packages referenced
	// directly once an integration is flattened.
	DefaultSharedLibraries = []string{"TIPCommon", "EnvironmentCommon"}

	// DefaultLocalPackages are the source-layout package directories that
	// disappear when an integration is flattened.
	DefaultLocalPackages = []string{"core", "actions", "connectors", "jobs", "widgets"}
)

// Rewriter rewrites relative imports for the flat layout.
type Rewriter struct {
	// SharedLibraries are package names that survive flattening as real packages.
	SharedLibraries []string
	// LocalPackages are package names whose directories are flattened away.
	LocalPackages []string
}

// NewRewriter returns a Rewriter using the default package names.
func NewRewriter() *Rewriter {
	return &Rewriter{
		SharedLibraries: DefaultSharedLibraries,
		LocalPackages:   DefaultLocalPackages,
	}
}

// RestructureImport rewrites a single import statement with the default Rewriter.
func RestructureImport(stmt string) string {
	return NewRewriter().RewriteStatement(stmt)
}

// RestructureScriptImports rewrites every import statement of a script with
// the default Rewriter.
func RestructureScriptImports(code string) string {
	return NewRewriter().RewriteScript(code)
}

// RewriteStatement rewrites one, possibly multi-line, import statement.
// Leading indentation is preserved. Statements that are not relative imports
// reaching above the current package are returned unchanged.
func (r *Rewriter) RewriteStatement(stmt string) string {
	indent, body := splitIndent(stmt)
	if !strings.HasPrefix(body, "from") {
		return stmt
	}
	rest := strings.TrimPrefix(body, "from")
	if rest == "" || !isSpace(rest[0]) {
		return stmt
	}
	rest = strings.TrimLeft(rest, " \t")

	end := 0
	for end < len(rest) && !isSpace(rest[end]) && rest[end] != '\\' {
		end++
	}
	module := rest[:end]
	tail := strings.TrimLeft(rest[end:], " \t\\\n\r")
	if !strings.HasPrefix(tail, "import") {
		return stmt
	}
	names := strings.TrimPrefix(tail, "import")
	if names == "" || !(isSpace(names[0]) || names[0] == '(' || names[0] == '\\') {
		return stmt
	}

	level := 0
	for level < len(module) && module[level] == '.' {
		level++
	}
	if level < 2 {
		return stmt
	}

	var segments []string
	if path := module[level:]; path != "" {
		segments = strings.Split(path, ".")
	}

	for i, seg := range segments {
		if contains(r.SharedLibraries, seg) {
			return indent + "from " + strings.Join(segments[i:], ".") + " import" + names
		}
	}

	for len(segments) > 0 && contains(r.LocalPackages, segments[0]) {
		segments = segments[1:]
	}
	if len(segments) > 0 {
		return indent + "from " + segments[len(segments)-1] + " import" + names
	}

	flat, comment, ok := flattenNames(names)
	if !ok {
		return stmt
	}
	out := indent + "import " + flat
	if comment != "" {
		out += "  " + comment
	}
	return out
}

// RewriteScript rewrites every import statement in a script. Statements that
// continue over several lines through parentheses or backslashes are handled
// as one unit. Text inside triple-quoted strings is left untouched.
func (r *Rewriter) RewriteScript(code string) string {
	return mapStatements(code, isFromStatement, r.RewriteStatement)
}

// RewritePackageScript rewrites a script that itself lives inside a package
// being flattened, such as a module under core/. Same-level references then
// point into the dissolved package and are flattened too.
func (r *Rewriter) RewritePackageScript(code string) string {
	return mapStatements(code, isFromStatement, func(stmt string) string {
		indent, body := splitIndent(stmt)
		rest := strings.TrimLeft(strings.TrimPrefix(body, "from"), " \t")
		if strings.HasPrefix(rest, ".") && !strings.HasPrefix(rest, "..") {
			stmt = indent + "from ." + rest
		}
		return r.RewriteStatement(stmt)
	})
}

// RelativizeScript is the inverse of RewriteScript for flat imports of the
// given local modules: "from mod import x" becomes "from <pkg>.mod import x"
// and "import mod" becomes "from <pkg> import mod", where pkg is a relative
// package reference such as "..core" or ".". Other statements are unchanged.
func (r *Rewriter) RelativizeScript(code string, modules []string, pkg string) string {
	return mapStatements(code,
		func(body string) bool { return isFromStatement(body) || strings.HasPrefix(body, "import ") },
		func(stmt string) string { return relativizeStatement(stmt, modules, pkg) })
}

// mapStatements applies fn to every statement of code selected by match,
// joining continuation lines first and skipping triple-quoted text.
func mapStatements(code string, match func(body string) bool, fn func(stmt string) string) string {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	var quote string

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if quote != "" {
			out = append(out, line)
			quote = updateQuote(line, quote)
			continue
		}

		_, body := splitIndent(line)
		if !match(body) {
			out = append(out, line)
			quote = updateQuote(line, "")
			continue
		}

		stmt := line
		for i+1 < len(lines) && continues(stmt) {
			i++
			stmt += "\n" + lines[i]
		}
		out = append(out, fn(stmt))
	}

	return strings.Join(out, "\n")
}

func isFromStatement(body string) bool {
	return strings.HasPrefix(body, "from ") || strings.HasPrefix(body, "from\t")
}

func relativizeStatement(stmt string, modules []string, pkg string) string {
	indent, body := splitIndent(stmt)

	if rest, ok := strings.CutPrefix(body, "from "); ok {
		rest = strings.TrimLeft(rest, " \t")
		end := strings.IndexAny(rest, " \t\\")
		if end < 0 {
			return stmt
		}
		module := rest[:end]
		head, _, _ := strings.Cut(module, ".")
		if strings.HasPrefix(module, ".") || !contains(modules, head) {
			return stmt
		}
		return indent + "from " + joinPackage(pkg, module) + rest[end:]
	}

	names, comment, _ := strings.Cut(strings.TrimPrefix(body, "import "), "#")
	var mods []string
	for _, part := range strings.Split(names, ",") {
		name := strings.Fields(part)
		if len(name) == 0 || strings.Contains(name[0], ".") || !contains(modules, name[0]) {
			return stmt
		}
		mods = append(mods, strings.Join(name, " "))
	}
	out := indent + "from " + pkg + " import " + strings.Join(mods, ", ")
	if comment != "" {
		out += "  #" + strings.TrimRight(comment, " \t\r")
	}
	return out
}

func joinPackage(pkg, module string) string {
	if strings.HasSuffix(pkg, ".") {
		return pkg + module
	}
	return pkg + "." + module
}

// ScriptModuleName returns the flat module name for a script file path,
// e.g. "core/clients/api.py" -> "api".
func ScriptModuleName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".py")
}

// flattenNames turns the names part of `from X import <names>` into the
// comma-separated list used by a plain `import` statement.
func flattenNames(names string) (flat, comment string, ok bool) {
	var parts []string
	for _, line := range strings.Split(names, "\n") {
		code, c, _ := strings.Cut(line, "#")
		if c != "" {
			comment = "#" + strings.TrimRight(c, " \t\r")
		}
		code = strings.NewReplacer("(", " ", ")", " ", "\\", " ").Replace(code)
		for _, name := range strings.Split(code, ",") {
			name = strings.Join(strings.Fields(name), " ")
			if name != "" {
				parts = append(parts, name)
			}
		}
	}
	if len(parts) == 0 {
		return "", "", false
	}
	for _, p := range parts {
		if p == "*" {
			return "", "", false
		}
	}
	return strings.Join(parts, ", "), comment, true
}

// continues reports whether stmt needs the next line to be complete.
func continues(stmt string) bool {
	code := stripComments(stmt)
	if strings.Count(code, "(") > strings.Count(code, ")") {
		return true
	}
	return strings.HasSuffix(strings.TrimRight(code, " \t\r"), "\\")
}

func stripComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	for i, line := range lines {
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

// updateQuote tracks whether the scanner is inside a triple-quoted string
// after consuming line. quote is the currently open delimiter or "".
func updateQuote(line, quote string) string {
	for len(line) > 0 {
		if quote == "" {
			i1 := strings.Index(line, `"""`)
			i2 := strings.Index(line, `'''`)
			switch {
			case i1 < 0 && i2 < 0:
				return ""
			case i2 < 0 || (i1 >= 0 && i1 < i2):
				quote, line = `"""`, line[i1+3:]
			default:
				quote, line = `'''`, line[i2+3:]
			}
			continue
		}
		idx := strings.Index(line, quote)
		if idx < 0 {
			return quote
		}
		quote, line = "", line[idx+3:]
	}
	return quote
}

func splitIndent(s string) (indent, body string) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i], s[i:]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
