package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/minigraph/graph/tool"
)

// callTool invokes t with input, converting panics into errors and
// applying the engine's tool timeout when one is configured.
//
// A tool that returns after its deadline has its update discarded and the
// call is reported as a timeout.
func callTool(ctx context.Context, t tool.Tool, input State, timeout time.Duration) (update map[string]interface{}, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			update = nil
			err = errPanic{value: r}
		}
	}()

	update, err = t.Call(ctx, input)

	if timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("exceeded timeout of %v: %w", timeout, context.DeadlineExceeded)
	}
	return update, err
}
