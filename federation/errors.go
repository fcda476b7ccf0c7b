package federation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/n9te9/go-graphql-rpc-gateway/graphqlrpc"
)

var (
	ErrNoSubschemas  = errors.New("federation: no subschemas configured")
	ErrDuplicateName = errors.New("federation: queue configured more than once")
)

// GraphQLError represents a GraphQL error with path information.
type GraphQLError struct {
	Message    string                `json:"message"`
	Locations  []graphqlrpc.Location `json:"locations,omitempty"`
	Path       []any                 `json:"path,omitempty"`
	Extensions map[string]any        `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// CompositionError reports subschemas that cannot be merged.
type CompositionError struct {
	Coordinate string
	Queues     []string
	Reason     string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition failed at %s (%s): %s", e.Coordinate, strings.Join(e.Queues, ", "), e.Reason)
}

// DefaultErrorPrefixes maps leading error codes to the text shown to clients.
var DefaultErrorPrefixes = map[string]string{
	"UNAUTHENTICATED": "Authentication required",
	"FORBIDDEN":       "You are not allowed to perform this action",
	"NOT_FOUND":       "The requested resource was not found",
	"BAD_USER_INPUT":  "Invalid input",
	"CONFLICT":        "The resource was modified concurrently",
}

// ErrorFormatter rewrites coded error messages for clients. A message such
// as "FORBIDDEN: not a project member" becomes
// "You are not allowed to perform this action: not a project member" with
// extensions.code set to FORBIDDEN. In debug mode errors are left untouched.
type ErrorFormatter struct {
	Debug    bool
	Prefixes map[string]string
}

func (f ErrorFormatter) Format(e GraphQLError) GraphQLError {
	if f.Debug {
		return e
	}

	prefixes := f.Prefixes
	if prefixes == nil {
		prefixes = DefaultErrorPrefixes
	}

	code, rest := splitCode(e.Message)
	human, ok := prefixes[code]
	if !ok {
		return e
	}

	out := e
	out.Message = human
	if rest != "" {
		out.Message = human + ": " + rest
	}
	out.Extensions = make(map[string]any, len(e.Extensions)+1)
	for k, v := range e.Extensions {
		out.Extensions[k] = v
	}
	out.Extensions["code"] = code
	return out
}

func (f ErrorFormatter) FormatAll(errs []GraphQLError) []GraphQLError {
	if len(errs) == 0 {
		return errs
	}
	out := make([]GraphQLError, len(errs))
	for i, e := range errs {
		out[i] = f.Format(e)
	}
	return out
}

// splitCode splits a leading upper-case word off msg.
func splitCode(msg string) (code, rest string) {
	end := 0
	for end < len(msg) {
		c := msg[end]
		if (c >= 'A' && c <= 'Z') || c == '_' {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return "", msg
	}
	if end < len(msg) && msg[end] != ':' && msg[end] != ' ' {
		return "", msg
	}

	rest = strings.TrimLeft(msg[end:], ": ")
	return msg[:end], rest
}
