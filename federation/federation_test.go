package federation_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/n9te9/go-graphql-rpc-gateway/federation"
	"github.com/n9te9/go-graphql-rpc-gateway/graphqlrpc"
	"github.com/n9te9/go-graphql-rpc-gateway/rpc"
	"github.com/vektah/gqlparser/v2"
)

func TestCompose(t *testing.T) {
	sg := newSuperGraph(t)

	owners := map[string]string{}
	for coord, sub := range sg.Ownerships {
		owners[coord] = sub.Queue
	}
	want := map[string]string{
		"Query.users":         "users",
		"Query.user":          "users",
		"Mutation.createUser": "users",
		"Query.posts":         "posts",
		"Query.secret":        "posts",
		"Mutation.createPost": "posts",
	}
	if diff := cmp.Diff(want, owners); diff != "" {
		t.Errorf("ownerships mismatch (-want +got):\n%s", diff)
	}

	user := sg.Type("User")
	if user == nil {
		t.Fatal("User type missing from supergraph")
	}
	var fields []string
	for _, f := range user.Fields {
		fields = append(fields, f.Name)
	}
	if diff := cmp.Diff([]string{"id", "name", "role", "nickname"}, fields); diff != "" {
		t.Errorf("User fields mismatch (-want +got):\n%s", diff)
	}

	for _, s := range []string{"type Query {", "type Mutation {", "enum Role {", "type Post {", `@deprecated(reason: "use name")`} {
		if !strings.Contains(sg.SDL, s) {
			t.Errorf("SDL does not contain %q:\n%s", s, sg.SDL)
		}
	}
}

func TestCompose_Conflicts(t *testing.T) {
	tests := []struct {
		name       string
		a, b       string
		coordinate string
	}{
		{
			name:       "root field owned twice",
			a:          `type Query { users: [String!]! }`,
			b:          `type Query { users: [String!]! }`,
			coordinate: "Query.users",
		},
		{
			name:       "mutation field owned twice",
			a:          `type Query { a: Int } type Mutation { save: Int }`,
			b:          `type Query { b: Int } type Mutation { save: Int }`,
			coordinate: "Mutation.save",
		},
		{
			name:       "kind mismatch",
			a:          `type Query { a: Thing } enum Thing { ONE }`,
			b:          `type Query { b: Thing } type Thing { id: ID }`,
			coordinate: "Thing",
		},
		{
			name:       "field type mismatch",
			a:          `type Query { a: User } type User { id: ID! }`,
			b:          `type Query { b: User } type User { id: String }`,
			coordinate: "User.id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := federation.Compose([]*federation.Subschema{
				introspected(t, "a", tt.a),
				introspected(t, "b", tt.b),
			})

			var ce *federation.CompositionError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CompositionError, got %v", err)
			}
			if ce.Coordinate != tt.coordinate {
				t.Errorf("coordinate = %q, want %q", ce.Coordinate, tt.coordinate)
			}
			if diff := cmp.Diff([]string{"a", "b"}, ce.Queues); diff != "" {
				t.Errorf("queues mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompose_NoSubschemas(t *testing.T) {
	if _, err := federation.Compose(nil); !errors.Is(err, federation.ErrNoSubschemas) {
		t.Fatalf("expected ErrNoSubschemas, got %v", err)
	}
}

// introspected builds a subschema from sdl without any transport or
// resolvers.
func introspected(t *testing.T, queue, sdl string) *federation.Subschema {
	t.Helper()

	data, err := graphql.MustParseSchema(sdl, nil).ToJSON()
	if err != nil {
		t.Fatalf("introspect %s: %v", queue, err)
	}
	s, err := federation.ParseIntrospection(data)
	if err != nil {
		t.Fatalf("parse introspection: %v", err)
	}
	return &federation.Subschema{Queue: queue, Schema: s}
}

var sortStrings = cmpopts.SortSlices(func(a, b string) bool { return a < b })

func TestEngine_Execute(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		variables map[string]any
		want      string
		queues    []string
	}{
		{
			name:   "single subschema",
			query:  `{ users { id name } }`,
			want:   `{"users":[{"id":"1","name":"Ada"},{"id":"2","name":"Grace"}]}`,
			queues: []string{"users"},
		},
		{
			name:   "fan out across subschemas",
			query:  `{ posts(limit: 1) { title author { id } } users { name } }`,
			want:   `{"posts":[{"title":"Queues","author":{"id":"1"}}],"users":[{"name":"Ada"},{"name":"Grace"}]}`,
			queues: []string{"posts", "users"},
		},
		{
			name:      "aliases and variables",
			query:     `query Q($id: ID!) { who: user(id: $id) { name role } first: posts(limit: 1) { id } }`,
			variables: map[string]any{"id": "2"},
			want:      `{"who":{"name":"Grace","role":"MEMBER"},"first":[{"id":"p1"}]}`,
			queues:    []string{"posts", "users"},
		},
		{
			name:   "root fragments",
			query:  `query { ...Root } fragment Root on Query { users { ...U } } fragment U on User { id }`,
			want:   `{"users":[{"id":"1"},{"id":"2"}]}`,
			queues: []string{"users"},
		},
		{
			name:      "skip excludes a subschema",
			query:     `query($s: Boolean!) { users @skip(if: $s) { id } posts { id } }`,
			variables: map[string]any{"s": true},
			want:      `{"posts":[{"id":"p1"},{"id":"p2"}]}`,
			queues:    []string{"posts"},
		},
		{
			name:   "root typename",
			query:  `{ __typename users { id } }`,
			want:   `{"__typename":"Query","users":[{"id":"1"},{"id":"2"}]}`,
			queues: []string{"users"},
		},
		{
			name:   "negative limit yields an empty list",
			query:  `{ posts(limit: -1) { id } }`,
			want:   `{"posts":[]}`,
			queues: []string{"posts"},
		},
		{
			name:   "same subschema is called once",
			query:  `{ a: users { id } b: user(id: "1") { name } }`,
			want:   `{"a":[{"id":"1"},{"id":"2"}],"b":{"name":"Ada"}}`,
			queues: []string{"users"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sg := newSuperGraph(t)
			rec := record(sg)
			engine := federation.NewEngine(sg, federation.WithLogger(discard))

			res := engine.Execute(context.Background(), federation.Request{Query: tt.query, Variables: tt.variables})
			if len(res.Errors) > 0 {
				t.Fatalf("unexpected errors: %+v", res.Errors)
			}
			if res.BadGateway {
				t.Error("BadGateway set on success")
			}
			if diff := cmp.Diff(decodeJSON(t, []byte(tt.want)), decodeJSON(t, res.Data)); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}

			calls := rec.Calls()
			if diff := cmp.Diff(tt.queues, calls, sortStrings); diff != "" {
				t.Errorf("subschema calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEngine_KeepsDocumentOrder(t *testing.T) {
	engine := federation.NewEngine(newSuperGraph(t), federation.WithLogger(discard))

	res := engine.Execute(context.Background(), federation.Request{Query: `{ users { id } posts { id } __typename }`})
	data := string(res.Data)
	u, p, tn := strings.Index(data, `"users"`), strings.Index(data, `"posts"`), strings.Index(data, `"__typename"`)
	if u < 0 || p < 0 || tn < 0 || !(u < p && p < tn) {
		t.Errorf("keys out of document order: %s", data)
	}
}

func TestEngine_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		req       federation.Request
		wantInMsg string
	}{
		{
			name:      "unknown field",
			req:       federation.Request{Query: `{ nope }`},
			wantInMsg: "nope",
		},
		{
			name:      "syntax error",
			req:       federation.Request{Query: `{ users { id }`},
			wantInMsg: "Expected",
		},
		{
			name:      "missing variable",
			req:       federation.Request{Query: `query($id: ID!) { user(id: $id) { id } }`},
			wantInMsg: "must be defined",
		},
		{
			name:      "unknown operation",
			req:       federation.Request{Query: `query A { users { id } }`, OperationName: "B"},
			wantInMsg: `"B"`,
		},
		{
			name:      "ambiguous operation",
			req:       federation.Request{Query: `query A { users { id } } query B { posts { id } }`},
			wantInMsg: "operation name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sg := newSuperGraph(t)
			rec := record(sg)
			engine := federation.NewEngine(sg, federation.WithLogger(discard))

			res := engine.Execute(context.Background(), tt.req)
			if res.Data != nil {
				t.Errorf("expected no data, got %s", res.Data)
			}
			if len(res.Errors) == 0 || !strings.Contains(res.Errors[0].Message, tt.wantInMsg) {
				t.Errorf("errors = %+v, want a message containing %q", res.Errors, tt.wantInMsg)
			}
			if calls := rec.Calls(); len(calls) != 0 {
				t.Errorf("subschemas called for invalid request: %v", calls)
			}
		})
	}
}

func TestEngine_UnavailableSubschema(t *testing.T) {
	sg := newSuperGraph(t)
	failing(sg, "posts", rpc.ErrCallTimeout)
	engine := federation.NewEngine(sg, federation.WithLogger(discard))

	res := engine.Execute(context.Background(), federation.Request{Query: `{ users { id } posts { id } }`})

	if !res.BadGateway {
		t.Error("BadGateway not set")
	}
	want := decodeJSON(t, []byte(`{"users":[{"id":"1"},{"id":"2"}],"posts":null}`))
	if diff := cmp.Diff(want, decodeJSON(t, res.Data)); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %+v", res.Errors)
	}
	e := res.Errors[0]
	if diff := cmp.Diff([]any{"posts"}, e.Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if e.Extensions["serviceName"] != "posts" {
		t.Errorf("serviceName = %v, want posts", e.Extensions["serviceName"])
	}
}

func TestEngine_SubschemaErrors(t *testing.T) {
	tests := []struct {
		name     string
		debug    bool
		wantMsg  string
		wantCode any
	}{
		{
			name:     "formatted",
			wantMsg:  "You are not allowed to perform this action: not a project member",
			wantCode: "FORBIDDEN",
		},
		{
			name:    "debug passes through",
			debug:   true,
			wantMsg: "FORBIDDEN: not a project member",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := federation.NewEngine(newSuperGraph(t),
				federation.WithLogger(discard),
				federation.WithErrorFormatter(federation.ErrorFormatter{Debug: tt.debug}),
			)

			res := engine.Execute(context.Background(), federation.Request{Query: `{ secret users { id } }`})
			if res.BadGateway {
				t.Error("GraphQL errors must not set BadGateway")
			}
			if len(res.Errors) != 1 {
				t.Fatalf("expected 1 error, got %+v", res.Errors)
			}
			e := res.Errors[0]
			if e.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", e.Message, tt.wantMsg)
			}
			if e.Extensions["code"] != tt.wantCode {
				t.Errorf("code = %v, want %v", e.Extensions["code"], tt.wantCode)
			}
			if e.Extensions["serviceName"] != "posts" {
				t.Errorf("serviceName = %v, want posts", e.Extensions["serviceName"])
			}
			if diff := cmp.Diff([]any{"secret"}, e.Path); diff != "" {
				t.Errorf("path mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// Shared types expose the union of their fields, but a field is resolved by
// the service owning the root field it is selected under.
func TestEngine_SharedTypeFieldsResolveAtOwner(t *testing.T) {
	sg := newSuperGraph(t)
	if user := sg.Type("User"); user == nil || len(user.Fields) != 4 {
		t.Fatalf("composed User = %+v, want the union of both services' fields", user)
	}

	engine := federation.NewEngine(sg, federation.WithLogger(discard))
	res := engine.Execute(context.Background(), federation.Request{Query: `{ posts(limit: 1) { author { name } } }`})

	if res.BadGateway {
		t.Error("a GraphQL error from the owner must not set BadGateway")
	}
	if diff := cmp.Diff(decodeJSON(t, []byte(`{"posts":null}`)), decodeJSON(t, res.Data)); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected 1 error, got %+v", res.Errors)
	}
	e := res.Errors[0]
	if !strings.Contains(e.Message, `"name"`) {
		t.Errorf("message = %q, want the owner's unknown field error", e.Message)
	}
	if e.Extensions["serviceName"] != "posts" {
		t.Errorf("serviceName = %v, want posts", e.Extensions["serviceName"])
	}
}

func TestEngine_MutationsRunInDocumentOrder(t *testing.T) {
	sg := newSuperGraph(t)
	rec := record(sg)
	engine := federation.NewEngine(sg, federation.WithLogger(discard))

	res := engine.Execute(context.Background(), federation.Request{
		Query: `mutation {
			a: createUser(name: "x") { id }
			b: createUser(name: "y") { id }
			p: createPost(title: "t") { title }
			c: createUser(name: "z") { id }
		}`,
	})
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected errors: %+v", res.Errors)
	}
	if diff := cmp.Diff([]string{"users", "posts", "users"}, rec.Calls()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	want := decodeJSON(t, []byte(`{"a":{"id":"new-x"},"b":{"id":"new-y"},"p":{"title":"t"},"c":{"id":"new-z"}}`))
	if diff := cmp.Diff(want, decodeJSON(t, res.Data)); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_ForwardsCaller(t *testing.T) {
	sg := newSuperGraph(t)
	rec := record(sg)
	engine := federation.NewEngine(sg, federation.WithLogger(discard))

	caller := &graphqlrpc.CallerContext{User: map[string]any{"id": "u-1"}}
	engine.Execute(context.Background(), federation.Request{Query: `{ users { id } }`, Caller: caller})

	reqs := rec.reqs["users"]
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if diff := cmp.Diff(caller, reqs[0].Context); diff != "" {
		t.Errorf("caller mismatch (-want +got):\n%s", diff)
	}
}

func TestSuperGraph_Plan(t *testing.T) {
	sg := newSuperGraph(t)

	query := `query Q($id: ID!, $limit: Int) {
		user(id: $id) { ...U }
		posts(limit: $limit) { id }
	}
	fragment U on User { ...V }
	fragment V on User { name }`

	doc, errs := gqlparser.LoadQuery(sg.AST, query)
	if len(errs) > 0 {
		t.Fatalf("load query: %v", errs)
	}
	op, err := federation.SelectOperation(doc, "Q")
	if err != nil {
		t.Fatal(err)
	}
	vars := map[string]any{"id": "1", "limit": 1}
	plan, err := sg.Plan(doc, op, vars)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(plan.Steps))
	}

	steps := map[string]*federation.Step{}
	for _, s := range plan.Steps {
		steps[s.Subschema.Queue] = s
	}

	users := steps["users"]
	if diff := cmp.Diff(map[string]any{"id": "1"}, users.Variables); diff != "" {
		t.Errorf("users variables mismatch (-want +got):\n%s", diff)
	}
	for _, s := range []string{"$id", "fragment U", "fragment V"} {
		if !strings.Contains(users.Query, s) {
			t.Errorf("users step lacks %q:\n%s", s, users.Query)
		}
	}
	for _, s := range []string{"$limit", "posts"} {
		if strings.Contains(users.Query, s) {
			t.Errorf("users step carries %q:\n%s", s, users.Query)
		}
	}

	postsStep := steps["posts"]
	if diff := cmp.Diff(map[string]any{"limit": 1}, postsStep.Variables); diff != "" {
		t.Errorf("posts variables mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(postsStep.Query, "fragment") {
		t.Errorf("posts step carries fragments:\n%s", postsStep.Query)
	}
	if postsStep.OperationName != "Q" {
		t.Errorf("operation name = %q, want Q", postsStep.OperationName)
	}

	// Every step is a valid operation for its own subschema.
	for queue, s := range steps {
		if _, errs := gqlparser.LoadQuery(sg.AST, s.Query); len(errs) > 0 {
			t.Errorf("%s step does not validate: %v\n%s", queue, errs, s.Query)
		}
	}
}

func TestEngine_Introspection(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "root types",
			query: `{ __schema { queryType { name } mutationType { name } subscriptionType { name } } }`,
			want:  `{"__schema":{"queryType":{"name":"Query"},"mutationType":{"name":"Mutation"},"subscriptionType":null}}`,
		},
		{
			name:  "merged object type",
			query: `{ __type(name: "User") { kind name description fields { name type { kind name ofType { kind name } } } } }`,
			want: `{"__type":{"kind":"OBJECT","name":"User","description":"A registered account.","fields":[
				{"name":"id","type":{"kind":"NON_NULL","name":null,"ofType":{"kind":"SCALAR","name":"ID"}}},
				{"name":"name","type":{"kind":"NON_NULL","name":null,"ofType":{"kind":"SCALAR","name":"String"}}},
				{"name":"role","type":{"kind":"NON_NULL","name":null,"ofType":{"kind":"ENUM","name":"Role"}}}
			]}}`,
		},
		{
			name:  "deprecated fields on request",
			query: `{ __type(name: "User") { fields(includeDeprecated: true) { name isDeprecated deprecationReason } } }`,
			want: `{"__type":{"fields":[
				{"name":"id","isDeprecated":false,"deprecationReason":null},
				{"name":"name","isDeprecated":false,"deprecationReason":null},
				{"name":"role","isDeprecated":false,"deprecationReason":null},
				{"name":"nickname","isDeprecated":true,"deprecationReason":"use name"}
			]}}`,
		},
		{
			name:  "enum values with fragments and typename",
			query: `{ __type(name: "Role") { __typename ...E } } fragment E on __Type { enumValues { name } }`,
			want:  `{"__type":{"__typename":"__Type","enumValues":[{"name":"ADMIN"},{"name":"MEMBER"}]}}`,
		},
		{
			name:  "root field arguments",
			query: `{ __type(name: "Query") { fields { name args { name defaultValue } } } }`,
			want: `{"__type":{"fields":[
				{"name":"users","args":[]},
				{"name":"user","args":[{"name":"id","defaultValue":null}]},
				{"name":"posts","args":[{"name":"limit","defaultValue":"10"}]},
				{"name":"secret","args":[]}
			]}}`,
		},
		{
			name:  "unknown type",
			query: `{ __type(name: "Nope") { name } }`,
			want:  `{"__type":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sg := newSuperGraph(t)
			rec := record(sg)
			engine := federation.NewEngine(sg, federation.WithLogger(discard))

			res := engine.Execute(context.Background(), federation.Request{Query: tt.query})
			if len(res.Errors) > 0 {
				t.Fatalf("unexpected errors: %+v", res.Errors)
			}
			if diff := cmp.Diff(decodeJSON(t, []byte(tt.want)), decodeJSON(t, res.Data)); diff != "" {
				t.Errorf("data mismatch (-want +got):\n%s", diff)
			}
			if calls := rec.Calls(); len(calls) != 0 {
				t.Errorf("introspection reached subschemas: %v", calls)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name    string
		queues  []string
		wantErr error
	}{
		{
			name:    "no queues",
			wantErr: federation.ErrNoSubschemas,
		},
		{
			name:    "duplicate queue",
			queues:  []string{"users", "posts", "users"},
			wantErr: federation.ErrDuplicateName,
		},
		{
			name:    "one service missing fails startup",
			queues:  []string{"users", "posts", "billing"},
			wantErr: rpc.ErrCallTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := graphqlrpc.NewCaller(newLocalRPC(), graphqlrpc.WithLogger(discard))
			sg, err := federation.Discover(context.Background(), &declarer{}, caller, tt.queues, federation.WithLogger(discard))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if sg != nil {
				t.Error("a partial supergraph was returned")
			}
		})
	}
}

func TestDiscover_DeclaresQueuesAndUsesSystemIdentity(t *testing.T) {
	var identities []*graphqlrpc.CallerContext
	rpcs := newLocalRPC()
	spy := &spyRPC{next: rpcs, seen: func(req *graphqlrpc.Request) {
		identities = append(identities, req.Context)
	}}

	d := &declarer{}
	caller := graphqlrpc.NewCaller(spy, graphqlrpc.WithLogger(discard))
	if _, err := federation.Discover(context.Background(), d, caller, []string{"users"}, federation.WithLogger(discard)); err != nil {
		t.Fatalf("discover: %v", err)
	}

	if diff := cmp.Diff([]string{"users"}, d.declared); diff != "" {
		t.Errorf("declared queues mismatch (-want +got):\n%s", diff)
	}
	if len(identities) != 1 || !identities[0].Elevated() {
		t.Errorf("introspection must run as the system caller, got %+v", identities)
	}
}

func TestErrorFormatter(t *testing.T) {
	tests := []struct {
		name      string
		formatter federation.ErrorFormatter
		in        federation.GraphQLError
		want      federation.GraphQLError
	}{
		{
			name: "known code with detail",
			in:   federation.GraphQLError{Message: "NOT_FOUND: project 42"},
			want: federation.GraphQLError{
				Message:    "The requested resource was not found: project 42",
				Extensions: map[string]any{"code": "NOT_FOUND"},
			},
		},
		{
			name: "known code alone",
			in:   federation.GraphQLError{Message: "UNAUTHENTICATED"},
			want: federation.GraphQLError{
				Message:    "Authentication required",
				Extensions: map[string]any{"code": "UNAUTHENTICATED"},
			},
		},
		{
			name: "existing extensions are kept",
			in: federation.GraphQLError{
				Message:    "CONFLICT stale version",
				Extensions: map[string]any{"serviceName": "users"},
			},
			want: federation.GraphQLError{
				Message:    "The resource was modified concurrently: stale version",
				Extensions: map[string]any{"code": "CONFLICT", "serviceName": "users"},
			},
		},
		{
			name: "unknown code is untouched",
			in:   federation.GraphQLError{Message: "TEAPOT: short and stout"},
			want: federation.GraphQLError{Message: "TEAPOT: short and stout"},
		},
		{
			name: "lower case message is untouched",
			in:   federation.GraphQLError{Message: "something broke"},
			want: federation.GraphQLError{Message: "something broke"},
		},
		{
			name: "code must be a whole word",
			in:   federation.GraphQLError{Message: "FORBIDDENx"},
			want: federation.GraphQLError{Message: "FORBIDDENx"},
		},
		{
			name:      "debug passes through",
			formatter: federation.ErrorFormatter{Debug: true},
			in:        federation.GraphQLError{Message: "FORBIDDEN: nope"},
			want:      federation.GraphQLError{Message: "FORBIDDEN: nope"},
		},
		{
			name:      "custom prefixes",
			formatter: federation.ErrorFormatter{Prefixes: map[string]string{"RATE_LIMITED": "Slow down"}},
			in:        federation.GraphQLError{Message: "RATE_LIMITED: 10 rps"},
			want: federation.GraphQLError{
				Message:    "Slow down: 10 rps",
				Extensions: map[string]any{"code": "RATE_LIMITED"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.formatter.Format(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Format() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
