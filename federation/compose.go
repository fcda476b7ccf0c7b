package federation

import (
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// Subschema is one federated service: its queue, its introspected schema and
// the executor that runs operations on it.
type Subschema struct {
	Queue    string
	Schema   *IntrospectionSchema
	Executor Executor
}

// SuperGraph is the composition of all subschemas.
type SuperGraph struct {
	Schema     *IntrospectionSchema
	SDL        string
	AST        *ast.Schema
	SubGraphs  []*Subschema
	Ownerships map[string]*Subschema // "Query.users" → owner

	types map[string]*IntrospectionType
}

// Owner returns the subschema that owns root field typeName.fieldName.
func (sg *SuperGraph) Owner(typeName, fieldName string) (*Subschema, bool) {
	s, ok := sg.Ownerships[typeName+"."+fieldName]
	return s, ok
}

// Type returns the composed named type or nil.
func (sg *SuperGraph) Type(name string) *IntrospectionType {
	return sg.types[name]
}

// Compose merges the subschemas. Root fields must be unique across
// subschemas; other types are merged by name.
func Compose(subschemas []*Subschema) (*SuperGraph, error) {
	if len(subschemas) == 0 {
		return nil, ErrNoSubschemas
	}

	c := &composer{
		types:      make(map[string]*IntrospectionType),
		origin:     make(map[string]string),
		directives: make(map[string]*IntrospectionDirective),
		owners:     make(map[string]*Subschema),
	}
	for _, sub := range subschemas {
		if err := c.add(sub); err != nil {
			return nil, err
		}
	}

	merged := &IntrospectionSchema{
		QueryType: &TypeName{Name: "Query"},
	}
	if _, ok := c.types["Mutation"]; ok {
		merged.MutationType = &TypeName{Name: "Mutation"}
	}
	for _, name := range c.order {
		merged.Types = append(merged.Types, c.types[name])
	}
	for _, name := range c.directiveOrder {
		merged.Directives = append(merged.Directives, c.directives[name])
	}

	if q := c.types["Query"]; q == nil || len(q.Fields) == 0 {
		return nil, &CompositionError{Coordinate: "Query", Queues: queueNames(subschemas), Reason: "no subschema exposes a query field"}
	}

	sdl := PrintSDL(merged)
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "supergraph.graphql", Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("federation: composed schema is invalid: %w", err)
	}

	return &SuperGraph{
		Schema:     merged,
		SDL:        sdl,
		AST:        schema,
		SubGraphs:  subschemas,
		Ownerships: c.owners,
		types:      c.types,
	}, nil
}

type composer struct {
	types          map[string]*IntrospectionType
	order          []string
	origin         map[string]string
	directives     map[string]*IntrospectionDirective
	directiveOrder []string
	owners         map[string]*Subschema
}

func (c *composer) add(sub *Subschema) error {
	for _, t := range sub.Schema.Types {
		existing, ok := c.types[t.Name]
		if !ok {
			cp := copyType(t)
			if isRoot(t.Name) {
				cp.Fields = nil
			}
			c.types[t.Name] = cp
			c.order = append(c.order, t.Name)
			c.origin[t.Name] = sub.Queue
			existing = cp
		} else if isIntrospectionType(t.Name) {
			continue
		} else if existing.Kind != t.Kind {
			return &CompositionError{
				Coordinate: t.Name,
				Queues:     []string{c.origin[t.Name], sub.Queue},
				Reason:     fmt.Sprintf("defined as %s and %s", existing.Kind, t.Kind),
			}
		}

		if isRoot(t.Name) {
			if err := c.addRootFields(existing, t, sub); err != nil {
				return err
			}
			continue
		}
		if err := c.mergeType(existing, t, sub.Queue); err != nil {
			return err
		}
	}

	for _, d := range sub.Schema.Directives {
		if _, ok := c.directives[d.Name]; ok {
			continue
		}
		c.directives[d.Name] = d
		c.directiveOrder = append(c.directiveOrder, d.Name)
	}
	return nil
}

func (c *composer) addRootFields(root, t *IntrospectionType, sub *Subschema) error {
	for _, f := range t.Fields {
		key := t.Name + "." + f.Name
		if owner, ok := c.owners[key]; ok {
			return &CompositionError{
				Coordinate: key,
				Queues:     []string{owner.Queue, sub.Queue},
				Reason:     "ownership conflict for root field",
			}
		}
		c.owners[key] = sub
		root.Fields = append(root.Fields, f)
	}
	return nil
}

// mergeType adds the fields, input fields and enum values of src to dst.
// The composed type advertises the union; a selection is still answered by
// the service owning its root field, which rejects fields it lacks.
func (c *composer) mergeType(dst, src *IntrospectionType, queue string) error {
	conflict := func(coord, reason string) error {
		return &CompositionError{
			Coordinate: coord,
			Queues:     []string{c.origin[dst.Name], queue},
			Reason:     reason,
		}
	}

	for _, f := range src.Fields {
		if existing := fieldByName(dst.Fields, f.Name); existing != nil {
			if existing.Type.String() != f.Type.String() {
				return conflict(dst.Name+"."+f.Name, fmt.Sprintf("field type %s conflicts with %s", existing.Type, f.Type))
			}
			continue
		}
		dst.Fields = append(dst.Fields, f)
	}

	for _, f := range src.InputFields {
		if existing := inputByName(dst.InputFields, f.Name); existing != nil {
			if existing.Type.String() != f.Type.String() {
				return conflict(dst.Name+"."+f.Name, fmt.Sprintf("input field type %s conflicts with %s", existing.Type, f.Type))
			}
			continue
		}
		dst.InputFields = append(dst.InputFields, f)
	}

	for _, v := range src.EnumValues {
		if !hasEnumValue(dst.EnumValues, v.Name) {
			dst.EnumValues = append(dst.EnumValues, v)
		}
	}
	dst.Interfaces = unionRefs(dst.Interfaces, src.Interfaces)
	dst.PossibleTypes = unionRefs(dst.PossibleTypes, src.PossibleTypes)

	if dst.Description == "" {
		dst.Description = src.Description
	}
	return nil
}

func isRoot(name string) bool {
	return name == "Query" || name == "Mutation"
}

func copyType(t *IntrospectionType) *IntrospectionType {
	cp := *t
	cp.Fields = append([]*IntrospectionField(nil), t.Fields...)
	cp.InputFields = append([]*InputValue(nil), t.InputFields...)
	cp.Interfaces = append([]*TypeRef(nil), t.Interfaces...)
	cp.EnumValues = append([]*EnumValue(nil), t.EnumValues...)
	cp.PossibleTypes = append([]*TypeRef(nil), t.PossibleTypes...)
	return &cp
}

func fieldByName(fields []*IntrospectionField, name string) *IntrospectionField {
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func inputByName(values []*InputValue, name string) *InputValue {
	for _, v := range values {
		if v.Name == name {
			return v
		}
	}
	return nil
}

func hasEnumValue(values []*EnumValue, name string) bool {
	for _, v := range values {
		if v.Name == name {
			return true
		}
	}
	return false
}

func unionRefs(dst, src []*TypeRef) []*TypeRef {
	for _, r := range src {
		found := false
		for _, d := range dst {
			if d.NamedType() == r.NamedType() {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, r)
		}
	}
	return dst
}

func queueNames(subschemas []*Subschema) []string {
	names := make([]string, 0, len(subschemas))
	for _, s := range subschemas {
		names = append(names, s.Queue)
	}
	return names
}
