package federation

import (
	"fmt"

	"github.com/goccy/go-json"
)

// IntrospectionQuery is the standard introspection operation sent to every
// service during discovery.
const IntrospectionQuery = `query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types { ...FullType }
    directives {
      name
      description
      locations
      args { ...InputValue }
    }
  }
}

fragment FullType on __Type {
  kind
  name
  description
  fields(includeDeprecated: true) {
    name
    description
    args { ...InputValue }
    type { ...TypeRef }
    isDeprecated
    deprecationReason
  }
  inputFields { ...InputValue }
  interfaces { ...TypeRef }
  enumValues(includeDeprecated: true) {
    name
    description
    isDeprecated
    deprecationReason
  }
  possibleTypes { ...TypeRef }
}

fragment InputValue on __InputValue {
  name
  description
  type { ...TypeRef }
  defaultValue
}

fragment TypeRef on __Type {
  kind
  name
  ofType {
    kind
    name
    ofType {
      kind
      name
      ofType {
        kind
        name
        ofType {
          kind
          name
          ofType {
            kind
            name
            ofType {
              kind
              name
              ofType {
                kind
                name
              }
            }
          }
        }
      }
    }
  }
}`

// Type kinds as reported by __Type.kind.
const (
	KindScalar      = "SCALAR"
	KindObject      = "OBJECT"
	KindInterface   = "INTERFACE"
	KindUnion       = "UNION"
	KindEnum        = "ENUM"
	KindInputObject = "INPUT_OBJECT"
	KindList        = "LIST"
	KindNonNull     = "NON_NULL"
)

type IntrospectionSchema struct {
	QueryType        *TypeName                 `json:"queryType"`
	MutationType     *TypeName                 `json:"mutationType"`
	SubscriptionType *TypeName                 `json:"subscriptionType"`
	Types            []*IntrospectionType      `json:"types"`
	Directives       []*IntrospectionDirective `json:"directives"`
}

type TypeName struct {
	Name string `json:"name"`
}

type IntrospectionType struct {
	Kind          string                `json:"kind"`
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	Fields        []*IntrospectionField `json:"fields"`
	InputFields   []*InputValue         `json:"inputFields"`
	Interfaces    []*TypeRef            `json:"interfaces"`
	EnumValues    []*EnumValue          `json:"enumValues"`
	PossibleTypes []*TypeRef            `json:"possibleTypes"`
}

type IntrospectionField struct {
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	Args              []*InputValue `json:"args"`
	Type              *TypeRef      `json:"type"`
	IsDeprecated      bool          `json:"isDeprecated"`
	DeprecationReason string        `json:"deprecationReason"`
}

type InputValue struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Type         *TypeRef `json:"type"`
	DefaultValue *string  `json:"defaultValue"`
}

type EnumValue struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	IsDeprecated      bool   `json:"isDeprecated"`
	DeprecationReason string `json:"deprecationReason"`
}

// TypeRef is a possibly wrapped reference to a named type.
type TypeRef struct {
	Kind   string   `json:"kind"`
	Name   string   `json:"name"`
	OfType *TypeRef `json:"ofType"`
}

// NamedType returns the innermost type name.
func (r *TypeRef) NamedType() string {
	for r != nil {
		if r.Kind != KindList && r.Kind != KindNonNull {
			return r.Name
		}
		r = r.OfType
	}
	return ""
}

// String renders the reference in SDL notation, e.g. "[User!]!".
func (r *TypeRef) String() string {
	if r == nil {
		return ""
	}
	switch r.Kind {
	case KindNonNull:
		return r.OfType.String() + "!"
	case KindList:
		return "[" + r.OfType.String() + "]"
	default:
		return r.Name
	}
}

type IntrospectionDirective struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Locations   []string      `json:"locations"`
	Args        []*InputValue `json:"args"`
}

// ParseIntrospection decodes the data of an introspection response.
func ParseIntrospection(data json.RawMessage) (*IntrospectionSchema, error) {
	var payload struct {
		Schema *IntrospectionSchema `json:"__schema"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode introspection: %w", err)
	}
	if payload.Schema == nil {
		return nil, fmt.Errorf("decode introspection: response has no __schema")
	}
	if payload.Schema.QueryType == nil || payload.Schema.QueryType.Name == "" {
		return nil, fmt.Errorf("decode introspection: schema has no query type")
	}
	return payload.Schema, nil
}

// Type returns the named type or nil.
func (s *IntrospectionSchema) Type(name string) *IntrospectionType {
	for _, t := range s.Types {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// normalizeRoots renames the root operation types to Query and Mutation and
// removes the subscription root, which cannot be served over request/reply.
// It reports whether a subscription type was removed.
func (s *IntrospectionSchema) normalizeRoots() (droppedSubscription bool, err error) {
	renames := map[string]string{}
	if s.QueryType != nil && s.QueryType.Name != "Query" {
		renames[s.QueryType.Name] = "Query"
	}
	if s.MutationType != nil && s.MutationType.Name != "Mutation" {
		renames[s.MutationType.Name] = "Mutation"
	}

	if s.SubscriptionType != nil {
		name := s.SubscriptionType.Name
		kept := s.Types[:0]
		for _, t := range s.Types {
			if t.Name != name {
				kept = append(kept, t)
			}
		}
		s.Types = kept
		s.SubscriptionType = nil
		droppedSubscription = true
	}

	if len(renames) == 0 {
		return droppedSubscription, nil
	}

	for from, to := range renames {
		if existing := s.Type(to); existing != nil && existing.Name != from {
			return droppedSubscription, fmt.Errorf("root type %s cannot be renamed to %s: name already in use", from, to)
		}
	}

	rename := func(name string) string {
		if to, ok := renames[name]; ok {
			return to
		}
		return name
	}
	var renameRef func(r *TypeRef)
	renameRef = func(r *TypeRef) {
		for ; r != nil; r = r.OfType {
			r.Name = rename(r.Name)
		}
	}
	renameArgs := func(args []*InputValue) {
		for _, a := range args {
			renameRef(a.Type)
		}
	}

	if s.QueryType != nil {
		s.QueryType.Name = rename(s.QueryType.Name)
	}
	if s.MutationType != nil {
		s.MutationType.Name = rename(s.MutationType.Name)
	}
	for _, t := range s.Types {
		t.Name = rename(t.Name)
		for _, f := range t.Fields {
			renameRef(f.Type)
			renameArgs(f.Args)
		}
		renameArgs(t.InputFields)
		for _, r := range t.Interfaces {
			renameRef(r)
		}
		for _, r := range t.PossibleTypes {
			renameRef(r)
		}
	}
	for _, d := range s.Directives {
		renameArgs(d.Args)
	}
	return droppedSubscription, nil
}
