// Package durablebatch wraps a chain.ChainClient so its ExecuteBatch call
// runs as a DBOS workflow step: if the process crashes between broadcasting
// a batch and recording its results, DBOS replays the workflow and returns
// the already-committed result instead of re-submitting, the way the grid
// engine's durable variant ran strategy and order-placement steps under
// dbos.DBOSContext instead of a plain in-process call.
package durablebatch

import (
	"context"
	"fmt"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"gridmm/internal/chain"
	"gridmm/internal/core"
)

// batchInput is the durable workflow's input: everything ExecuteBatch needs,
// bundled so a replay carries exactly the arguments the original call made.
type batchInput struct {
	Account        string
	IdempotencyKey string
	Ops            []core.ChainOp
}

// workflows holds the inner client an ExecuteBatch workflow steps into.
type workflows struct {
	inner chain.ChainClient
}

// ExecuteBatch is the durable workflow body: a single step delegating to the
// wrapped client. DBOS persists the step's result keyed by workflow id, so a
// replay after a crash returns the prior result rather than re-broadcasting.
func (w *workflows) ExecuteBatch(ctx dbos.DBOSContext, input any) (any, error) {
	in, ok := input.(batchInput)
	if !ok {
		return nil, fmt.Errorf("durablebatch: unexpected workflow input type %T", input)
	}

	resultsRaw, err := ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		return w.inner.ExecuteBatch(stepCtx, in.Account, in.IdempotencyKey, in.Ops)
	})
	if err != nil {
		return nil, err
	}
	return resultsRaw, nil
}

// Client decorates a chain.ChainClient, replacing only ExecuteBatch with a
// durable DBOS workflow; every other method delegates straight through.
type Client struct {
	chain.ChainClient
	dbosCtx   dbos.DBOSContext
	workflows *workflows
}

var _ chain.ChainClient = (*Client)(nil)

// Wrap builds a Client around inner using dbosCtx for durable execution.
// The caller owns dbosCtx's lifecycle (Launch/Shutdown); Wrap only registers
// the workflow it needs.
func Wrap(inner chain.ChainClient, dbosCtx dbos.DBOSContext) *Client {
	return &Client{
		ChainClient: inner,
		dbosCtx:     dbosCtx,
		workflows:   &workflows{inner: inner},
	}
}

// ExecuteBatch runs the wrapped client's batch submission as a durable DBOS
// workflow keyed by idempotencyKey, so a crash-and-restart between broadcast
// and result recording replays to the same outcome instead of double-firing
// a second on-chain submission.
func (c *Client) ExecuteBatch(ctx context.Context, account, idempotencyKey string, ops []core.ChainOp) ([]chain.OpResult, error) {
	handle, err := c.dbosCtx.RunWorkflow(c.dbosCtx, c.workflows.ExecuteBatch, batchInput{
		Account:        account,
		IdempotencyKey: idempotencyKey,
		Ops:            ops,
	}, dbos.WithWorkflowID(idempotencyKey))
	if err != nil {
		return nil, fmt.Errorf("durablebatch: start workflow: %w", err)
	}

	resultRaw, err := handle.GetResult()
	if err != nil {
		return nil, fmt.Errorf("durablebatch: await workflow result: %w", err)
	}
	results, ok := resultRaw.([]chain.OpResult)
	if !ok {
		return nil, fmt.Errorf("durablebatch: unexpected workflow result type %T", resultRaw)
	}
	return results, nil
}
