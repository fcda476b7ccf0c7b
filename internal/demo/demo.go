// Package demo provides two small GraphQL services, users and posts, that
// answer over rpc. The gateway can run them in process against the memory
// broker, and tests use them as real subschemas.
package demo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/n9te9/go-graphql-rpc-gateway/broker"
	"github.com/n9te9/go-graphql-rpc-gateway/graphqlrpc"
	"github.com/n9te9/go-graphql-rpc-gateway/rpc"
	"golang.org/x/sync/errgroup"
)

const (
	UsersQueue = "users"
	PostsQueue = "posts"
)

const usersSDL = `
	type Query {
		users: [User!]!
		user(id: ID!): User
		whoami: String!
	}

	type Mutation {
		createUser(name: String!): User!
	}

	"A registered account."
	type User {
		id: ID!
		name: String!
		role: Role!
	}

	enum Role {
		ADMIN
		MEMBER
	}
`

const postsSDL = `
	type Query {
		posts(limit: Int = 10): [Post!]!
		drafts: [Post!]!
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

type user struct {
	id, name, role string
}

func (u *user) ID() graphql.ID { return graphql.ID(u.id) }
func (u *user) Name() string   { return u.name }
func (u *user) Role() string   { return u.role }

type users struct {
	mu    sync.Mutex
	users []*user
}

func (r *users) Users() []*user {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*user(nil), r.users...)
}

func (r *users) User(args struct{ ID graphql.ID }) *user {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.id == string(args.ID) {
			return u
		}
	}
	return nil
}

func (r *users) Whoami(ctx context.Context) string {
	cc, ok := graphqlrpc.CallerFromContext(ctx)
	if !ok {
		return "anonymous"
	}
	if id, _ := cc.User["id"].(string); id != "" {
		return id
	}
	return "anonymous"
}

func (r *users) CreateUser(args struct{ Name string }) *user {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &user{id: strconv.Itoa(len(r.users) + 1), name: args.Name, role: "MEMBER"}
	r.users = append(r.users, u)
	return u
}

// UsersSchema returns a fresh users service seeded with two accounts.
func UsersSchema() *graphql.Schema {
	return graphql.MustParseSchema(usersSDL, &users{users: []*user{
		{id: "1", name: "Ada", role: "ADMIN"},
		{id: "2", name: "Grace", role: "MEMBER"},
	}}, graphql.UseStringDescriptions())
}

type post struct {
	id, title, authorID string
}

func (p *post) ID() graphql.ID     { return graphql.ID(p.id) }
func (p *post) Title() string      { return p.title }
func (p *post) Author() *authorRef { return &authorRef{id: p.authorID} }

type authorRef struct{ id string }

func (a *authorRef) ID() graphql.ID { return graphql.ID(a.id) }

type posts struct {
	mu    sync.Mutex
	posts []*post
}

func (r *posts) Posts(args struct{ Limit int32 }) []*post {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := min(max(int(args.Limit), 0), len(r.posts))
	return append([]*post(nil), r.posts[:n]...)
}

// Drafts are visible to admins only.
func (r *posts) Drafts(ctx context.Context) ([]*post, error) {
	cc, ok := graphqlrpc.CallerFromContext(ctx)
	if !ok || cc.Elevated() {
		return []*post{}, nil
	}
	if role, _ := cc.User["role"].(string); role != "ADMIN" {
		return nil, errors.New("FORBIDDEN: drafts are visible to admins only")
	}
	return []*post{}, nil
}

func (r *posts) CreatePost(args struct{ Title string }) *post {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &post{id: fmt.Sprintf("p%d", len(r.posts)+1), title: args.Title, authorID: "1"}
	r.posts = append(r.posts, p)
	return p
}

// PostsSchema returns a fresh posts service seeded with two posts.
func PostsSchema() *graphql.Schema {
	return graphql.MustParseSchema(postsSDL, &posts{posts: []*post{
		{id: "p1", title: "Queues", authorID: "1"},
		{id: "p2", title: "Gateways", authorID: "2"},
	}}, graphql.UseStringDescriptions())
}

// Serve answers both services on ch until ctx ends.
func Serve(ctx context.Context, ch broker.Channel, opts ...rpc.Option) error {
	responder := rpc.NewResponder(ch, opts...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return graphqlrpc.Serve(ctx, responder, UsersQueue, UsersSchema())
	})
	g.Go(func() error {
		return graphqlrpc.Serve(ctx, responder, PostsQueue, PostsSchema())
	})
	return g.Wait()
}
