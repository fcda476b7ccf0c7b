// Package graphqlrpc carries GraphQL operations over rpc: Caller packages a
// query for a service queue and SchemaHandler executes it against the
// service's local schema.
package graphqlrpc

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/n9te9/go-graphql-rpc-gateway/rpc"
)

const EventGraphQL rpc.Event = "graphql"

// CallerContext identifies who a GraphQL operation runs for.
type CallerContext struct {
	User map[string]any `json:"user"`
}

const systemRole = "system"

// SystemCaller returns the elevated identity used for calls made by the
// platform itself, such as schema discovery.
func SystemCaller() *CallerContext {
	return &CallerContext{User: map[string]any{"id": "system", "role": systemRole}}
}

// AnonymousCaller returns an identity without any user.
func AnonymousCaller() *CallerContext {
	return &CallerContext{User: map[string]any{}}
}

// Elevated reports whether c carries the system role.
func (c *CallerContext) Elevated() bool {
	if c == nil {
		return false
	}
	role, _ := c.User["role"].(string)
	return role == systemRole
}

// Request is the rpc payload of a GraphQL operation.
type Request struct {
	Event         rpc.Event      `json:"event"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName,omitempty"`
	Context       *CallerContext `json:"context"`
}

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is a GraphQL error as it appears in a response.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e Error) Error() string {
	return e.Message
}

// Response is the standard GraphQL response envelope.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []Error         `json:"errors,omitempty"`
}

// Err joins the response errors into one error, or returns nil.
func (r *Response) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
}
