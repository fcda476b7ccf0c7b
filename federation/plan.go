package federation

import (
	"bytes"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// Step is the part of an operation sent to one subschema.
type Step struct {
	Subschema     *Subschema
	Query         string
	OperationName string
	Variables     map[string]any
	// Keys are the root response keys this step resolves.
	Keys []string

	fields []*ast.Field
}

// Plan splits an operation into per-subschema steps.
type Plan struct {
	Operation ast.Operation
	RootType  string
	// Keys lists every root response key in document order.
	Keys  []string
	Steps []*Step

	local map[string][]*ast.Field
}

// fieldGroup is every selection of one response key.
type fieldGroup struct {
	key    string
	fields []*ast.Field
}

func (g fieldGroup) name() string {
	return g.fields[0].Name
}

func responseKey(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// collectFields flattens fragments that apply to typeName and drops
// selections excluded by @skip or @include.
func collectFields(sel ast.SelectionSet, typeName string, vars map[string]any) []fieldGroup {
	var groups []fieldGroup
	index := map[string]int{}

	var walk func(ast.SelectionSet)
	walk = func(sel ast.SelectionSet) {
		for _, s := range sel {
			switch s := s.(type) {
			case *ast.Field:
				if !included(s.Directives, vars) {
					continue
				}
				key := responseKey(s)
				if i, ok := index[key]; ok {
					groups[i].fields = append(groups[i].fields, s)
					continue
				}
				index[key] = len(groups)
				groups = append(groups, fieldGroup{key: key, fields: []*ast.Field{s}})
			case *ast.InlineFragment:
				if !included(s.Directives, vars) {
					continue
				}
				if s.TypeCondition != "" && s.TypeCondition != typeName {
					continue
				}
				walk(s.SelectionSet)
			case *ast.FragmentSpread:
				if !included(s.Directives, vars) || s.Definition == nil {
					continue
				}
				if s.Definition.TypeCondition != typeName {
					continue
				}
				walk(s.Definition.SelectionSet)
			}
		}
	}
	walk(sel)
	return groups
}

func included(directives ast.DirectiveList, vars map[string]any) bool {
	if d := directives.ForName("skip"); d != nil {
		if v, _ := directiveArgs(d, vars)["if"].(bool); v {
			return false
		}
	}
	if d := directives.ForName("include"); d != nil {
		if v, _ := directiveArgs(d, vars)["if"].(bool); !v {
			return false
		}
	}
	return true
}

func directiveArgs(d *ast.Directive, vars map[string]any) map[string]any {
	if d.Definition == nil {
		return map[string]any{}
	}
	return d.ArgumentMap(vars)
}

func fieldArgs(f *ast.Field, vars map[string]any) map[string]any {
	if f.Definition == nil {
		return map[string]any{}
	}
	return f.ArgumentMap(vars)
}

// SelectOperation picks the operation to run from doc.
func SelectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if name == "" {
		if len(doc.Operations) != 1 {
			return nil, fmt.Errorf("an operation name is required when the document has %d operations", len(doc.Operations))
		}
		return doc.Operations[0], nil
	}
	op := doc.Operations.ForName(name)
	if op == nil {
		return nil, fmt.Errorf("unknown operation named %q", name)
	}
	return op, nil
}

// Plan groups the root fields of op by owning subschema. Queries get one
// step per subschema; mutations get one step per run of consecutive fields
// with the same owner, so they can run in document order.
func (sg *SuperGraph) Plan(doc *ast.QueryDocument, op *ast.OperationDefinition, variables map[string]any) (*Plan, error) {
	plan := &Plan{
		Operation: op.Operation,
		local:     map[string][]*ast.Field{},
	}
	switch op.Operation {
	case ast.Query, "":
		plan.RootType = "Query"
	case ast.Mutation:
		plan.RootType = "Mutation"
	default:
		return nil, fmt.Errorf("%s operations are not supported", op.Operation)
	}

	byOwner := map[*Subschema]*Step{}
	var last *Step
	for _, g := range collectFields(op.SelectionSet, plan.RootType, variables) {
		plan.Keys = append(plan.Keys, g.key)

		switch g.name() {
		case "__typename", "__schema", "__type":
			plan.local[g.key] = g.fields
			continue
		}

		owner, ok := sg.Owner(plan.RootType, g.name())
		if !ok {
			return nil, fmt.Errorf("no subschema owns %s.%s", plan.RootType, g.name())
		}

		var step *Step
		if plan.Operation == ast.Mutation {
			if last != nil && last.Subschema == owner {
				step = last
			}
		} else {
			step = byOwner[owner]
		}
		if step == nil {
			step = &Step{Subschema: owner}
			byOwner[owner] = step
			plan.Steps = append(plan.Steps, step)
		}
		step.Keys = append(step.Keys, g.key)
		step.fields = append(step.fields, g.fields...)
		last = step
	}

	for _, step := range plan.Steps {
		if err := step.build(doc, op, variables); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// build prints the step as a standalone operation carrying only the
// variables and fragments its fields use.
func (s *Step) build(doc *ast.QueryDocument, op *ast.OperationDefinition, variables map[string]any) error {
	usedVars := map[string]bool{}
	usedFrags := map[string]bool{}

	sel := make(ast.SelectionSet, 0, len(s.fields))
	for _, f := range s.fields {
		sel = append(sel, f)
	}
	collectUsage(sel, doc, usedVars, usedFrags)

	sub := &ast.OperationDefinition{
		Operation:    op.Operation,
		Name:         op.Name,
		SelectionSet: sel,
	}
	for _, vd := range op.VariableDefinitions {
		if usedVars[vd.Variable] {
			sub.VariableDefinitions = append(sub.VariableDefinitions, vd)
		}
	}

	out := &ast.QueryDocument{Operations: ast.OperationList{sub}}
	for _, fd := range doc.Fragments {
		if usedFrags[fd.Name] {
			out.Fragments = append(out.Fragments, fd)
		}
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(out)

	s.Query = buf.String()
	s.OperationName = op.Name
	if len(usedVars) > 0 {
		s.Variables = make(map[string]any, len(usedVars))
		for name := range usedVars {
			if v, ok := variables[name]; ok {
				s.Variables[name] = v
			}
		}
	}
	return nil
}

func collectUsage(sel ast.SelectionSet, doc *ast.QueryDocument, vars, frags map[string]bool) {
	for _, s := range sel {
		switch s := s.(type) {
		case *ast.Field:
			for _, a := range s.Arguments {
				collectValueVars(a.Value, vars)
			}
			collectDirectiveVars(s.Directives, vars)
			collectUsage(s.SelectionSet, doc, vars, frags)
		case *ast.InlineFragment:
			collectDirectiveVars(s.Directives, vars)
			collectUsage(s.SelectionSet, doc, vars, frags)
		case *ast.FragmentSpread:
			collectDirectiveVars(s.Directives, vars)
			if frags[s.Name] {
				continue
			}
			frags[s.Name] = true
			def := s.Definition
			if def == nil {
				def = doc.Fragments.ForName(s.Name)
			}
			if def != nil {
				collectDirectiveVars(def.Directives, vars)
				collectUsage(def.SelectionSet, doc, vars, frags)
			}
		}
	}
}

func collectDirectiveVars(directives ast.DirectiveList, vars map[string]bool) {
	for _, d := range directives {
		for _, a := range d.Arguments {
			collectValueVars(a.Value, vars)
		}
	}
}

func collectValueVars(v *ast.Value, vars map[string]bool) {
	if v == nil {
		return
	}
	if v.Kind == ast.Variable {
		vars[v.Raw] = true
	}
	for _, c := range v.Children {
		collectValueVars(c.Value, vars)
	}
}
