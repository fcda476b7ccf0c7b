package federation

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/vektah/gqlparser/v2/ast"
)

// projector answers __schema, __type and __typename from the composed
// schema. Results follow the order of the selection set.
type projector struct {
	superGraph *SuperGraph
	vars       map[string]any
}

// introspectionObject is one value of the introspection type system.
// resolve returns nil, a scalar, []string, an introspectionObject or a
// []introspectionObject.
type introspectionObject interface {
	typeName() string
	resolve(p *projector, field string, args map[string]any) any
}

func (p *projector) root(fields []*ast.Field, rootType string) json.RawMessage {
	var buf bytes.Buffer
	f := fields[0]
	switch f.Name {
	case "__typename":
		writeJSON(&buf, rootType)
	case "__schema":
		p.writeValue(&buf, schemaObject{}, mergeSelections(fields))
	case "__type":
		name, _ := fieldArgs(f, p.vars)["name"].(string)
		var obj any
		if t := p.superGraph.Type(name); t != nil {
			obj = typeObject{t: t}
		}
		p.writeValue(&buf, obj, mergeSelections(fields))
	default:
		buf.WriteString("null")
	}
	return buf.Bytes()
}

func (p *projector) writeValue(buf *bytes.Buffer, v any, sel ast.SelectionSet) {
	switch v := v.(type) {
	case nil:
		buf.WriteString("null")
	case introspectionObject:
		p.writeObject(buf, v, sel)
	case []introspectionObject:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			p.writeObject(buf, item, sel)
		}
		buf.WriteByte(']')
	default:
		writeJSON(buf, v)
	}
}

func (p *projector) writeObject(buf *bytes.Buffer, obj introspectionObject, sel ast.SelectionSet) {
	buf.WriteByte('{')
	for i, g := range collectFields(sel, obj.typeName(), p.vars) {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(buf, g.key)

		f := g.fields[0]
		if f.Name == "__typename" {
			writeJSON(buf, obj.typeName())
			continue
		}
		p.writeValue(buf, obj.resolve(p, f.Name, fieldArgs(f, p.vars)), mergeSelections(g.fields))
	}
	buf.WriteByte('}')
}

// ref resolves a type reference. Named references become the full composed
// type.
func (p *projector) ref(r *TypeRef) any {
	if r == nil {
		return nil
	}
	if r.Kind == KindList || r.Kind == KindNonNull {
		return typeObject{ref: r}
	}
	if t := p.superGraph.Type(r.Name); t != nil {
		return typeObject{t: t}
	}
	return typeObject{t: &IntrospectionType{Kind: r.Kind, Name: r.Name}}
}

func (p *projector) inputValues(values []*InputValue) []introspectionObject {
	out := make([]introspectionObject, 0, len(values))
	for _, v := range values {
		out = append(out, inputValueObject{v})
	}
	return out
}

func (p *projector) refs(refs []*TypeRef) []introspectionObject {
	out := make([]introspectionObject, 0, len(refs))
	for _, r := range refs {
		if obj, ok := p.ref(r).(introspectionObject); ok {
			out = append(out, obj)
		}
	}
	return out
}

type schemaObject struct{}

func (schemaObject) typeName() string { return "__Schema" }

func (schemaObject) resolve(p *projector, field string, _ map[string]any) any {
	s := p.superGraph.Schema
	switch field {
	case "types":
		out := make([]introspectionObject, 0, len(s.Types))
		for _, t := range s.Types {
			out = append(out, typeObject{t: t})
		}
		return out
	case "queryType":
		return p.ref(&TypeRef{Kind: KindObject, Name: s.QueryType.Name})
	case "mutationType":
		if s.MutationType == nil {
			return nil
		}
		return p.ref(&TypeRef{Kind: KindObject, Name: s.MutationType.Name})
	case "directives":
		out := make([]introspectionObject, 0, len(s.Directives))
		for _, d := range s.Directives {
			out = append(out, directiveObject{d})
		}
		return out
	}
	return nil
}

// typeObject is either a named type (t) or a LIST/NON_NULL wrapper (ref).
type typeObject struct {
	t   *IntrospectionType
	ref *TypeRef
}

func (typeObject) typeName() string { return "__Type" }

func (o typeObject) resolve(p *projector, field string, args map[string]any) any {
	if o.t == nil {
		switch field {
		case "kind":
			return o.ref.Kind
		case "ofType":
			return p.ref(o.ref.OfType)
		}
		return nil
	}

	t := o.t
	includeDeprecated, _ := args["includeDeprecated"].(bool)
	composite := t.Kind == KindObject || t.Kind == KindInterface

	switch field {
	case "kind":
		return t.Kind
	case "name":
		return t.Name
	case "description":
		return optional(t.Description)
	case "fields":
		if !composite {
			return nil
		}
		out := make([]introspectionObject, 0, len(t.Fields))
		for _, f := range t.Fields {
			if f.IsDeprecated && !includeDeprecated {
				continue
			}
			out = append(out, fieldObject{f})
		}
		return out
	case "interfaces":
		if !composite {
			return nil
		}
		return p.refs(t.Interfaces)
	case "possibleTypes":
		if t.Kind != KindInterface && t.Kind != KindUnion {
			return nil
		}
		return p.refs(t.PossibleTypes)
	case "enumValues":
		if t.Kind != KindEnum {
			return nil
		}
		out := make([]introspectionObject, 0, len(t.EnumValues))
		for _, v := range t.EnumValues {
			if v.IsDeprecated && !includeDeprecated {
				continue
			}
			out = append(out, enumValueObject{v})
		}
		return out
	case "inputFields":
		if t.Kind != KindInputObject {
			return nil
		}
		return p.inputValues(t.InputFields)
	case "isOneOf":
		if t.Kind != KindInputObject {
			return nil
		}
		return false
	}
	return nil
}

type fieldObject struct{ f *IntrospectionField }

func (fieldObject) typeName() string { return "__Field" }

func (o fieldObject) resolve(p *projector, field string, _ map[string]any) any {
	switch field {
	case "name":
		return o.f.Name
	case "description":
		return optional(o.f.Description)
	case "args":
		return p.inputValues(o.f.Args)
	case "type":
		return p.ref(o.f.Type)
	case "isDeprecated":
		return o.f.IsDeprecated
	case "deprecationReason":
		if !o.f.IsDeprecated {
			return nil
		}
		return optional(o.f.DeprecationReason)
	}
	return nil
}

type inputValueObject struct{ v *InputValue }

func (inputValueObject) typeName() string { return "__InputValue" }

func (o inputValueObject) resolve(p *projector, field string, _ map[string]any) any {
	switch field {
	case "name":
		return o.v.Name
	case "description":
		return optional(o.v.Description)
	case "type":
		return p.ref(o.v.Type)
	case "defaultValue":
		if o.v.DefaultValue == nil {
			return nil
		}
		return *o.v.DefaultValue
	case "isDeprecated":
		return false
	}
	return nil
}

type enumValueObject struct{ v *EnumValue }

func (enumValueObject) typeName() string { return "__EnumValue" }

func (o enumValueObject) resolve(_ *projector, field string, _ map[string]any) any {
	switch field {
	case "name":
		return o.v.Name
	case "description":
		return optional(o.v.Description)
	case "isDeprecated":
		return o.v.IsDeprecated
	case "deprecationReason":
		if !o.v.IsDeprecated {
			return nil
		}
		return optional(o.v.DeprecationReason)
	}
	return nil
}

type directiveObject struct{ d *IntrospectionDirective }

func (directiveObject) typeName() string { return "__Directive" }

func (o directiveObject) resolve(p *projector, field string, _ map[string]any) any {
	switch field {
	case "name":
		return o.d.Name
	case "description":
		return optional(o.d.Description)
	case "locations":
		return append([]string{}, o.d.Locations...)
	case "args":
		return p.inputValues(o.d.Args)
	case "isRepeatable":
		return false
	}
	return nil
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mergeSelections(fields []*ast.Field) ast.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var sel ast.SelectionSet
	for _, f := range fields {
		sel = append(sel, f.SelectionSet...)
	}
	return sel
}

func writeJSON(buf *bytes.Buffer, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		buf.WriteString("null")
		return
	}
	buf.Write(b)
}
