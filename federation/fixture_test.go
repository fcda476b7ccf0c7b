package federation_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/n9te9/go-graphql-rpc-gateway/broker"
	"github.com/n9te9/go-graphql-rpc-gateway/federation"
	"github.com/n9te9/go-graphql-rpc-gateway/graphqlrpc"
	"github.com/n9te9/go-graphql-rpc-gateway/rpc"
)

var discard = slog.New(slog.DiscardHandler)

const usersSDL = `
	type Query {
		users: [User!]!
		user(id: ID!): User
	}

	type Mutation {
		createUser(name: String!): User!
	}

	"A registered account."
	type User {
		id: ID!
		name: String!
		role: Role!
		nickname: String @deprecated(reason: "use name")
	}

	enum Role {
		ADMIN
		MEMBER
	}
`

type usersService struct{}

type userResolver struct {
	id, name, role string
}

func (u *userResolver) ID() graphql.ID    { return graphql.ID(u.id) }
func (u *userResolver) Name() string      { return u.name }
func (u *userResolver) Role() string      { return u.role }
func (u *userResolver) Nickname() *string { return &u.name }

var people = []*userResolver{
	{id: "1", name: "Ada", role: "ADMIN"},
	{id: "2", name: "Grace", role: "MEMBER"},
}

func (usersService) Users() []*userResolver {
	return people
}

func (usersService) User(args struct{ ID graphql.ID }) *userResolver {
	for _, u := range people {
		if u.id == string(args.ID) {
			return u
		}
	}
	return nil
}

func (usersService) CreateUser(args struct{ Name string }) *userResolver {
	return &userResolver{id: "new-" + args.Name, name: args.Name, role: "MEMBER"}
}

const postsSDL = `
	type Query {
		posts(limit: Int = 10): [Post!]!
		secret: String
	}

	type Mutation {
		createPost(title: String!): Post!
	}

	type Post {
		id: ID!
		title: String!
		author: User!
	}

	type User {
		id: ID!
	}
`

type postsService struct{}

type postResolver struct {
	id, title, authorID string
}

func (p *postResolver) ID() graphql.ID     { return graphql.ID(p.id) }
func (p *postResolver) Title() string      { return p.title }
func (p *postResolver) Author() *authorRef { return &authorRef{id: p.authorID} }

type authorRef struct{ id string }

func (a *authorRef) ID() graphql.ID { return graphql.ID(a.id) }

var posts = []*postResolver{
	{id: "p1", title: "Queues", authorID: "1"},
	{id: "p2", title: "Gateways", authorID: "2"},
}

func (postsService) Posts(args struct{ Limit int32 }) []*postResolver {
	n := min(max(int(args.Limit), 0), len(posts))
	return posts[:n]
}

func (postsService) Secret() (*string, error) {
	return nil, errors.New("FORBIDDEN: not a project member")
}

func (postsService) CreatePost(args struct{ Title string }) *postResolver {
	return &postResolver{id: "new", title: args.Title, authorID: "1"}
}

// localRPC routes calls straight into schema handlers, skipping the broker.
type localRPC struct {
	handlers map[string]rpc.Handler
}

func newLocalRPC() *localRPC {
	return &localRPC{handlers: map[string]rpc.Handler{
		"users": graphqlrpc.NewSchemaHandler(graphql.MustParseSchema(usersSDL, &usersService{}, graphql.UseStringDescriptions())),
		"posts": graphqlrpc.NewSchemaHandler(graphql.MustParseSchema(postsSDL, &postsService{}, graphql.UseStringDescriptions())),
	}}
}

func (r *localRPC) Call(ctx context.Context, queue string, data any) (json.RawMessage, error) {
	h, ok := r.handlers[queue]
	if !ok {
		return nil, fmt.Errorf("%w: nobody consumes %q", rpc.ErrCallTimeout, queue)
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out, err := h.ServeRPC(ctx, &rpc.Envelope{Payload: body})
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// spyRPC reports every GraphQL request before forwarding it.
type spyRPC struct {
	next graphqlrpc.RPC
	seen func(*graphqlrpc.Request)
}

func (s *spyRPC) Call(ctx context.Context, queue string, data any) (json.RawMessage, error) {
	if req, ok := data.(*graphqlrpc.Request); ok {
		s.seen(req)
	}
	return s.next.Call(ctx, queue, data)
}

type declarer struct {
	mu       sync.Mutex
	declared []string
}

func (d *declarer) DeclareQueue(name string, _ broker.QueueOptions) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.declared = append(d.declared, name)
	return name, nil
}

// newSuperGraph discovers the users and posts services.
func newSuperGraph(t *testing.T) *federation.SuperGraph {
	t.Helper()

	caller := graphqlrpc.NewCaller(newLocalRPC(), graphqlrpc.WithLogger(discard))
	sg, err := federation.Discover(context.Background(), &declarer{}, caller, []string{"users", "posts"}, federation.WithLogger(discard))
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	return sg
}

// recorder wraps the executors of sg and records the queues they are
// called for.
type recorder struct {
	mu    sync.Mutex
	calls []string
	reqs  map[string][]*graphqlrpc.Request
}

func record(sg *federation.SuperGraph) *recorder {
	r := &recorder{reqs: map[string][]*graphqlrpc.Request{}}
	for _, sub := range sg.SubGraphs {
		next, queue := sub.Executor, sub.Queue
		sub.Executor = func(ctx context.Context, req *graphqlrpc.Request) (*graphqlrpc.Response, error) {
			r.mu.Lock()
			r.calls = append(r.calls, queue)
			r.reqs[queue] = append(r.reqs[queue], req)
			r.mu.Unlock()
			return next(ctx, req)
		}
	}
	return r
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func failing(sg *federation.SuperGraph, queue string, err error) {
	for _, sub := range sg.SubGraphs {
		if sub.Queue == queue {
			sub.Executor = func(context.Context, *graphqlrpc.Request) (*graphqlrpc.Response, error) {
				return nil, err
			}
		}
	}
}

func decodeJSON(t *testing.T, raw []byte) any {
	t.Helper()
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}
