package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Placeholder names usable in stage templates as ${name}.
const (
	VarUsecase       = "usecase"
	VarEntities      = "entities"
	VarRelationships = "relationships"
	VarDiagram       = "diagram"
	VarInstructions  = "instructions"
	VarContext       = "context"
)

var knownVars = map[string]bool{
	VarUsecase:       true,
	VarEntities:      true,
	VarRelationships: true,
	VarDiagram:       true,
	VarInstructions:  true,
	VarContext:       true,
}

// noneSpecified is substituted for empty name lists.
const noneSpecified = "(none specified)"

// Template is a parsed stage prompt with ${...} placeholders.
type Template struct {
	name string
	src  string
	expr hclsyntax.Expression
	vars []string
}

// ParseTemplate parses src and checks that every placeholder it references
// is a known pipeline variable.
func ParseTemplate(name, src string) (*Template, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), name, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse template %s: %s", name, diags.Error())
	}

	seen := make(map[string]bool)
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		if !knownVars[root] {
			return nil, fmt.Errorf("template %s: unknown placeholder %q at %s",
				name, root, traversal.SourceRange())
		}
		seen[root] = true
	}

	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	return &Template{name: name, src: src, expr: expr, vars: vars}, nil
}

// MustParseTemplate is like ParseTemplate but panics on error.
func MustParseTemplate(name, src string) *Template {
	t, err := ParseTemplate(name, src)
	if err != nil {
		panic(err)
	}
	return t
}

// Source returns the unparsed template text.
func (t *Template) Source() string { return t.src }

// Variables returns the sorted placeholder names the template references.
func (t *Template) Variables() []string {
	out := make([]string, len(t.vars))
	copy(out, t.vars)
	return out
}

// Render substitutes vars into the template. Missing variables render as
// empty strings.
func (t *Template) Render(vars map[string]string) (string, error) {
	values := make(map[string]cty.Value, len(knownVars))
	for name := range knownVars {
		values[name] = cty.StringVal(vars[name])
	}

	val, diags := t.expr.Value(&hcl.EvalContext{Variables: values})
	if diags.HasErrors() {
		return "", fmt.Errorf("render template %s: %s", t.name, diags.Error())
	}
	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", t.name, err)
	}
	if val.IsNull() {
		return "", nil
	}
	return val.AsString(), nil
}

// Inputs are the caller-supplied values shared by every stage of a run.
type Inputs struct {
	Usecase       string
	Entities      []string
	Relationships []string
	Diagram       string
	Instructions  string
}

// vars returns the template variables for a stage whose dependency context
// is ctxText.
func (in Inputs) vars(ctxText string) map[string]string {
	return map[string]string{
		VarUsecase:       in.Usecase,
		VarEntities:      joinNames(in.Entities),
		VarRelationships: joinNames(in.Relationships),
		VarDiagram:       in.Diagram,
		VarInstructions:  in.Instructions,
		VarContext:       ctxText,
	}
}

func joinNames(names []string) string {
	kept := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 {
		return noneSpecified
	}
	return strings.Join(kept, ", ")
}
