package core

import (
	"context"
	"sync"
)

// AsyncEngine provides asynchronous duomem operations.
//
// It wraps the synchronous Engine and executes operations in separate
// goroutines, returning channels that receive the results when operations
// complete. The engine tracks all goroutines and provides Wait() to ensure
// all operations finish before shutdown.
//
// Example:
//
//	async, _ := core.NewAsyncEngine(config)
//	defer async.Close()
//
//	resultChan := async.IngestAsync(ctx, "Sarah works with Alex", core.WithOwnerID("user_001"))
//	result := <-resultChan
//	if result.Error != nil {
//	    log.Fatal(result.Error)
//	}
type AsyncEngine struct {
	*Engine
	wg sync.WaitGroup
}

// AsyncIngestResult carries the outcome of an asynchronous ingestion.
type AsyncIngestResult struct {
	Result *IngestResult
	Error  error
}

// AsyncSearchResult carries the outcome of an asynchronous search.
type AsyncSearchResult struct {
	Result *SearchResult
	Error  error
}

// AsyncFactResult carries the outcome of an asynchronous fact operation.
type AsyncFactResult struct {
	Fact  *Fact
	Error error
}

// NewAsyncEngine creates a new asynchronous duomem engine.
func NewAsyncEngine(cfg *Config, opts ...Option) (*AsyncEngine, error) {
	engine, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	return &AsyncEngine{Engine: engine}, nil
}

// IngestAsync ingests a fact asynchronously.
func (ae *AsyncEngine) IngestAsync(ctx context.Context, content string, opts ...IngestOption) <-chan *AsyncIngestResult {
	resultChan := make(chan *AsyncIngestResult, 1)
	ae.wg.Add(1)

	go func() {
		defer ae.wg.Done()
		result, err := ae.Ingest(ctx, content, opts...)
		resultChan <- &AsyncIngestResult{Result: result, Error: err}
		close(resultChan)
	}()

	return resultChan
}

// SearchAsync runs a merged query asynchronously.
func (ae *AsyncEngine) SearchAsync(ctx context.Context, query string, opts ...SearchOption) <-chan *AsyncSearchResult {
	resultChan := make(chan *AsyncSearchResult, 1)
	ae.wg.Add(1)

	go func() {
		defer ae.wg.Done()
		result, err := ae.Search(ctx, query, opts...)
		resultChan <- &AsyncSearchResult{Result: result, Error: err}
		close(resultChan)
	}()

	return resultChan
}

// GetAsync retrieves a fact asynchronously.
func (ae *AsyncEngine) GetAsync(ctx context.Context, id int64, opts ...GetOption) <-chan *AsyncFactResult {
	resultChan := make(chan *AsyncFactResult, 1)
	ae.wg.Add(1)

	go func() {
		defer ae.wg.Done()
		fact, err := ae.Get(ctx, id, opts...)
		resultChan <- &AsyncFactResult{Fact: fact, Error: err}
		close(resultChan)
	}()

	return resultChan
}

// UpdateAsync updates a fact asynchronously.
func (ae *AsyncEngine) UpdateAsync(ctx context.Context, id int64, content string, opts ...UpdateOption) <-chan *AsyncFactResult {
	resultChan := make(chan *AsyncFactResult, 1)
	ae.wg.Add(1)

	go func() {
		defer ae.wg.Done()
		fact, err := ae.Update(ctx, id, content, opts...)
		resultChan <- &AsyncFactResult{Fact: fact, Error: err}
		close(resultChan)
	}()

	return resultChan
}

// DeleteAsync deletes a fact asynchronously.
func (ae *AsyncEngine) DeleteAsync(ctx context.Context, id int64, opts ...DeleteOption) <-chan error {
	resultChan := make(chan error, 1)
	ae.wg.Add(1)

	go func() {
		defer ae.wg.Done()
		resultChan <- ae.Delete(ctx, id, opts...)
		close(resultChan)
	}()

	return resultChan
}

// Wait blocks until all in-flight async operations complete.
func (ae *AsyncEngine) Wait() {
	ae.wg.Wait()
}

// Close waits for in-flight operations and then closes the engine.
func (ae *AsyncEngine) Close() error {
	ae.Wait()
	return ae.Engine.Close()
}
