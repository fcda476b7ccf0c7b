package federation

import (
	"context"

	"github.com/n9te9/go-graphql-rpc-gateway/graphqlrpc"
)

// Executor runs one GraphQL operation on a subschema. An error means the
// subschema could not be reached; GraphQL errors are part of the response.
type Executor func(ctx context.Context, req *graphqlrpc.Request) (*graphqlrpc.Response, error)

// NewQueueExecutor returns an Executor that sends operations to queue.
func NewQueueExecutor(caller *graphqlrpc.Caller, queue string) Executor {
	return func(ctx context.Context, req *graphqlrpc.Request) (*graphqlrpc.Response, error) {
		return caller.Do(ctx, queue, req)
	}
}
