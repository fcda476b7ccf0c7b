package federation

import (
	"sort"
	"strconv"
	"strings"
)

var builtinScalars = map[string]bool{
	"String":  true,
	"Int":     true,
	"Float":   true,
	"Boolean": true,
	"ID":      true,
}

var builtinDirectives = map[string]bool{
	"skip":        true,
	"include":     true,
	"deprecated":  true,
	"specifiedBy": true,
	"oneOf":       true,
	"defer":       true,
}

func isIntrospectionType(name string) bool {
	return strings.HasPrefix(name, "__")
}

// PrintSDL renders s as schema definition language. Built-in scalars,
// introspection types and built-in directives are omitted. Root types are
// expected to be named Query and Mutation.
func PrintSDL(s *IntrospectionSchema) string {
	types := make([]*IntrospectionType, 0, len(s.Types))
	for _, t := range s.Types {
		if isIntrospectionType(t.Name) || (t.Kind == KindScalar && builtinScalars[t.Name]) {
			continue
		}
		types = append(types, t)
	}
	sort.SliceStable(types, func(i, j int) bool {
		return sdlRank(types[i].Name) < sdlRank(types[j].Name) ||
			(sdlRank(types[i].Name) == sdlRank(types[j].Name) && types[i].Name < types[j].Name)
	})

	directives := make([]*IntrospectionDirective, 0, len(s.Directives))
	for _, d := range s.Directives {
		if !builtinDirectives[d.Name] {
			directives = append(directives, d)
		}
	}
	sort.Slice(directives, func(i, j int) bool { return directives[i].Name < directives[j].Name })

	var b strings.Builder
	for _, d := range directives {
		printDescription(&b, d.Description, "")
		b.WriteString("directive @")
		b.WriteString(d.Name)
		printArgs(&b, d.Args)
		b.WriteString(" on ")
		b.WriteString(strings.Join(d.Locations, " | "))
		b.WriteString("\n\n")
	}

	for _, t := range types {
		printType(&b, t)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func sdlRank(name string) int {
	switch name {
	case "Query":
		return 0
	case "Mutation":
		return 1
	default:
		return 2
	}
}

func printType(b *strings.Builder, t *IntrospectionType) {
	printDescription(b, t.Description, "")

	switch t.Kind {
	case KindScalar:
		b.WriteString("scalar " + t.Name + "\n")

	case KindObject, KindInterface:
		if t.Kind == KindObject {
			b.WriteString("type ")
		} else {
			b.WriteString("interface ")
		}
		b.WriteString(t.Name)
		if len(t.Interfaces) > 0 {
			names := make([]string, 0, len(t.Interfaces))
			for _, i := range t.Interfaces {
				names = append(names, i.NamedType())
			}
			b.WriteString(" implements " + strings.Join(names, " & "))
		}
		b.WriteString(" {\n")
		for _, f := range t.Fields {
			printDescription(b, f.Description, "  ")
			b.WriteString("  " + f.Name)
			printArgs(b, f.Args)
			b.WriteString(": " + f.Type.String())
			printDeprecated(b, f.IsDeprecated, f.DeprecationReason)
			b.WriteString("\n")
		}
		b.WriteString("}\n")

	case KindUnion:
		names := make([]string, 0, len(t.PossibleTypes))
		for _, p := range t.PossibleTypes {
			names = append(names, p.NamedType())
		}
		b.WriteString("union " + t.Name + " = " + strings.Join(names, " | ") + "\n")

	case KindEnum:
		b.WriteString("enum " + t.Name + " {\n")
		for _, v := range t.EnumValues {
			printDescription(b, v.Description, "  ")
			b.WriteString("  " + v.Name)
			printDeprecated(b, v.IsDeprecated, v.DeprecationReason)
			b.WriteString("\n")
		}
		b.WriteString("}\n")

	case KindInputObject:
		b.WriteString("input " + t.Name + " {\n")
		for _, f := range t.InputFields {
			printDescription(b, f.Description, "  ")
			b.WriteString("  ")
			printInputValue(b, f)
			b.WriteString("\n")
		}
		b.WriteString("}\n")
	}
}

func printArgs(b *strings.Builder, args []*InputValue) {
	if len(args) == 0 {
		return
	}
	b.WriteString("(")
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		printInputValue(b, a)
	}
	b.WriteString(")")
}

func printInputValue(b *strings.Builder, v *InputValue) {
	b.WriteString(v.Name + ": " + v.Type.String())
	if v.DefaultValue != nil {
		b.WriteString(" = " + *v.DefaultValue)
	}
}

func printDeprecated(b *strings.Builder, deprecated bool, reason string) {
	if !deprecated {
		return
	}
	b.WriteString(" @deprecated")
	if reason != "" {
		b.WriteString("(reason: " + quote(reason) + ")")
	}
}

func printDescription(b *strings.Builder, desc, indent string) {
	if desc == "" {
		return
	}
	b.WriteString(indent + quote(desc) + "\n")
}

// quote renders s as a GraphQL string literal.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 {
				b.WriteString(`\u` + leftPad(strconv.FormatInt(int64(r), 16), 4))
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}
