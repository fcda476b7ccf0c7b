package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/n9te9/go-graphql-rpc-gateway/gateway"
	"github.com/n9te9/go-graphql-rpc-gateway/internal/demo"
)

// Init writes a starter gateway configuration to path. An existing file is
// never overwritten.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	opt := gateway.DefaultOption()
	opt.Queues = []string{demo.UsersQueue, demo.PostsQueue}

	out, err := yaml.MarshalWithOptions(opt, yaml.WithComment(yaml.CommentMap{
		"$.rpc.timeout": {yaml.LineComment(" per call; 0s waits until the service replies")},
	}))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
