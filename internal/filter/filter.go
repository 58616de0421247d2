// Package filter decides which files are left out of archives and
// extractions, by name pattern or CEL expression.
package filter

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/engine"
)

// Builtin lists operating system clutter excluded when filtering is enabled.
var Builtin = []string{".DS_Store", "Thumbs.db", "__MACOSX", "desktop.ini"}

// Set excludes an item when any pattern or expression matches it.
//
// Patterns without a slash match the base name; patterns with a slash match
// the whole slash-separated path. Expressions are CEL programs evaluated
// over name, path, size and dir and must yield a bool.
type Set struct {
	patterns []string
	programs []program
	logger   *zap.Logger
}

type program struct {
	expr string
	prg  cel.Program
}

var _ engine.Filter = (*Set)(nil)

// New compiles a filter set.
func New(logger *zap.Logger, patterns, expressions []string) (*Set, error) {
	s := &Set{logger: logger, patterns: lo.Uniq(lo.Compact(patterns))}
	for _, p := range s.patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", p, err)
		}
	}

	if len(expressions) == 0 {
		return s, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("dir", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}
	for _, expr := range expressions {
		ast, iss := env.Compile(expr)
		if iss.Err() != nil {
			return nil, fmt.Errorf("invalid filter expression %q: %w", expr, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("filter expression %q must be a bool, got %s", expr, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to build filter expression %q: %w", expr, err)
		}
		s.programs = append(s.programs, program{expr: expr, prg: prg})
	}
	return s, nil
}

// Empty reports whether the set never excludes anything.
func (s *Set) Empty() bool {
	return s == nil || (len(s.patterns) == 0 && len(s.programs) == 0)
}

// Exclude reports whether item is filtered out.
func (s *Set) Exclude(item engine.Item) bool {
	if s.Empty() {
		return false
	}
	name := path.Base(item.Path)
	for _, p := range s.patterns {
		subject := name
		if strings.Contains(p, "/") {
			subject = item.Path
		}
		if ok, _ := path.Match(p, subject); ok {
			return true
		}
	}

	if len(s.programs) == 0 {
		return false
	}
	vars := map[string]any{
		"name": name,
		"path": item.Path,
		"size": item.Size,
		"dir":  item.IsDir,
	}
	for _, p := range s.programs {
		out, _, err := p.prg.Eval(vars)
		if err != nil {
			s.logger.Debug("filter expression failed", zap.String("expr", p.expr), zap.String("path", item.Path), zap.Error(err))
			continue
		}
		if excluded, ok := out.Value().(bool); ok && excluded {
			return true
		}
	}
	return false
}
