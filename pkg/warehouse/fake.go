// SPDX-License-Identifier: Apache-2.0

package warehouse

import (
	"context"
	"sync"

	"github.com/alexchoi/bqdrift/pkg/invariant"
)

// FakeClient is an in-memory Client for tests: it records every statement
// it was asked to execute and returns a caller-configured query response.
type FakeClient struct {
	mu sync.Mutex

	// QueryResult is returned from every Query call unless QueryFunc is set.
	QueryResult invariant.QueryResult
	// QueryErr is returned from every Query call unless QueryFunc is set.
	QueryErr error
	// QueryFunc, if set, overrides QueryResult/QueryErr and is called with
	// the SQL text for each Query call.
	QueryFunc func(sql string) (invariant.QueryResult, error)

	// ExecErr is returned from every ExecuteQuery call unless ExecFunc is set.
	ExecErr error
	// ExecFunc, if set, overrides ExecErr and is called with the SQL text
	// for each ExecuteQuery call.
	ExecFunc func(sql string) (ExecResult, error)

	Executed []string
	Queried  []string
}

// NewFake returns a ready-to-use FakeClient with no configured behavior:
// every call succeeds and returns a zero value.
func NewFake() *FakeClient {
	return &FakeClient{}
}

func (f *FakeClient) ExecuteQuery(ctx context.Context, sql string) (ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Executed = append(f.Executed, sql)
	if f.ExecFunc != nil {
		return f.ExecFunc(sql)
	}
	return ExecResult{}, f.ExecErr
}

func (f *FakeClient) Query(ctx context.Context, sql string) (invariant.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Queried = append(f.Queried, sql)
	if f.QueryFunc != nil {
		return f.QueryFunc(sql)
	}
	return f.QueryResult, f.QueryErr
}

func (f *FakeClient) Close() error {
	return nil
}
