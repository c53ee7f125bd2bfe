package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callaudit-server/pkg/artifact"
	"callaudit-server/pkg/errors"
	"callaudit-server/pkg/fingerprint"
	"callaudit-server/pkg/metrics"
)

// ComputeFunc produces the value for a (stage, fingerprint) key on a full
// cache miss. It typically wraps an external collaborator call plus derived
// post-processing, so it may take seconds to minutes.
type ComputeFunc func(ctx context.Context) (interface{}, error)

// key is the cache identity of one unit of work.
type key struct {
	stage artifact.Stage
	fp    fingerprint.Fingerprint
}

// inflightCall tracks a computation in progress so concurrent misses on the
// same key coalesce onto it instead of recomputing.
type inflightCall struct {
	done chan struct{}
	art  *artifact.Artifact
	err  error
}

// TieredCache satisfies lookups from an in-memory map first, then from the
// durable artifact store, and only then invokes the compute function. Because
// artifacts are immutable and never updated after first write, a populated
// memory entry can never go stale relative to the store.
type TieredCache struct {
	logger *logrus.Entry
	store  artifact.Store

	mu       sync.Mutex
	memory   map[key]*artifact.Artifact
	inflight map[key]*inflightCall
}

// New creates a tiered cache in front of the given artifact store.
func New(logger *logrus.Logger, store artifact.Store) *TieredCache {
	return &TieredCache{
		logger:   logger.WithField("component", "tiered_cache"),
		store:    store,
		memory:   make(map[key]*artifact.Artifact),
		inflight: make(map[key]*inflightCall),
	}
}

// Resolve returns the artifact for (stage, fp), computing and persisting it
// if no tier holds it yet. Only one computation per key is ever in flight;
// concurrent callers for the same key wait for its outcome. A computation
// failure propagates to every waiter and leaves nothing cached, so the key is
// safe to retry.
//
// Caller cancellation aborts the wait, not the computation: an in-flight
// collaborator call is allowed to run to completion and populate the cache
// even if the original requester disconnected.
func (c *TieredCache) Resolve(ctx context.Context, stage artifact.Stage, fp fingerprint.Fingerprint, compute ComputeFunc) (*artifact.Artifact, error) {
	if fp.IsZero() {
		return nil, errors.NewInvalidInput("fingerprint is required")
	}

	k := key{stage: stage, fp: fp}

	c.mu.Lock()
	if art, ok := c.memory[k]; ok {
		c.mu.Unlock()
		metrics.RecordCacheHit(stage.String(), "memory")
		return art, nil
	}

	if call, ok := c.inflight[k]; ok {
		c.mu.Unlock()
		metrics.RecordCoalescedWait(stage.String())

		select {
		case <-call.done:
			return call.art, call.err
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "canceled while waiting for in-flight computation").
				WithField("stage", stage.String())
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	c.inflight[k] = call
	c.mu.Unlock()

	// The leader runs detached from the caller's context so its result is
	// still cached if the caller goes away mid-computation.
	go c.lead(context.WithoutCancel(ctx), k, call, compute)

	select {
	case <-call.done:
		return call.art, call.err
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "canceled while computation in flight").
			WithField("stage", stage.String())
	}
}

// lead performs the store lookup and, if needed, the computation for a key,
// then fulfills every coalesced waiter.
func (c *TieredCache) lead(ctx context.Context, k key, call *inflightCall, compute ComputeFunc) {
	art, err := c.resolveSlow(ctx, k, compute)

	c.mu.Lock()
	if err == nil && art != nil {
		c.memory[k] = art
	}
	delete(c.inflight, k)
	c.mu.Unlock()

	call.art = art
	call.err = err
	close(call.done)
}

func (c *TieredCache) resolveSlow(ctx context.Context, k key, compute ComputeFunc) (*artifact.Artifact, error) {
	stage := k.stage.String()

	// Store tier. A read fault is logged and treated as a miss; recomputing
	// is always safe because upstream stages are deterministic.
	stored, err := c.store.GetLatest(ctx, k.stage, k.fp)
	if err != nil {
		metrics.RecordStoreRead(stage, "error")
		c.logger.WithError(err).WithFields(logrus.Fields{
			"stage":       stage,
			"fingerprint": k.fp.Prefix(),
		}).Warn("Artifact store read failed, treating as cache miss")
	} else if stored != nil {
		metrics.RecordStoreRead(stage, "hit")
		metrics.RecordCacheHit(stage, "store")
		return stored, nil
	} else {
		metrics.RecordStoreRead(stage, "miss")
	}

	metrics.RecordCacheMiss(stage)
	stopTimer := metrics.ObserveComputation(stage)
	value, err := compute(ctx)
	stopTimer()
	if err != nil {
		// Nothing cached: collaborator failures are retryable and must not
		// become negative cache entries.
		return nil, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errors.NewInvalidInput("computed value is not serializable").WithField("stage", stage)
	}

	art := &artifact.Artifact{
		Stage:       k.stage,
		Fingerprint: k.fp,
		Value:       raw,
	}

	handle, putErr := c.store.Put(ctx, k.stage, k.fp, value)
	metrics.RecordStoreWrite(stage, putErr)
	if putErr != nil {
		// The response is still correct even if persistence failed; the
		// next process restart simply recomputes.
		c.logger.WithError(putErr).WithFields(logrus.Fields{
			"stage":       stage,
			"fingerprint": k.fp.Prefix(),
		}).Error("Failed to persist computed artifact, returning uncached result")
		art.VersionID = uuid.New().String()
		art.CreatedAt = time.Now().UTC()
		return art, nil
	}

	art.VersionID = handle.VersionID
	art.CreatedAt = handle.CreatedAt
	return art, nil
}

// Peek reports whether the memory tier already holds the key. Intended for
// tests and diagnostics.
func (c *TieredCache) Peek(stage artifact.Stage, fp fingerprint.Fingerprint) (*artifact.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	art, ok := c.memory[key{stage: stage, fp: fp}]
	return art, ok
}

// Clear drops the memory tier. The durable store is untouched, so subsequent
// resolves repopulate from it as they would after a process restart.
func (c *TieredCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.memory = make(map[key]*artifact.Artifact)
}

// Size returns the number of populated memory entries.
func (c *TieredCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.memory)
}
