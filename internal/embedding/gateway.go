package embedding

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"

	"golang.org/x/sync/errgroup"

	"fieldpilot/internal/logging"
)

const (
	defaultCacheSize = 500
	defaultBatchSize = 20

	// maxParallelBatches bounds concurrent remote calls when a large
	// ingestion produces many batches.
	maxParallelBatches = 4
)

// Gateway wraps an Engine with a bounded text->vector LRU cache and
// batched remote dispatch. Cached entries are immutable once written, so
// reads need no coordination beyond the map lock. A remote failure leaves
// the cache untouched; no partial or stale vectors are ever returned.
type Gateway struct {
	engine    Engine
	cacheSize int
	batchSize int

	mu    sync.Mutex
	cache map[uint64]*list.Element
	order *list.List // front = most recently used
}

type cacheEntry struct {
	key uint64
	vec []float32
}

// NewGateway wraps engine with caching and batching. Zero sizes select
// the defaults (cache 500, batch 20).
func NewGateway(engine Engine, cacheSize, batchSize int) *Gateway {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Gateway{
		engine:    engine,
		cacheSize: cacheSize,
		batchSize: batchSize,
		cache:     make(map[uint64]*list.Element),
		order:     list.New(),
	}
}

// textKey is a fast non-cryptographic hash; collisions are tolerable
// because a colliding text would only receive a semantically wrong but
// well-formed vector for one advisory search.
func textKey(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}

// Embed returns the vector for one text, from cache when possible.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input text, preserving input order.
// Uncached texts are fetched from the engine in batches of at most
// batchSize, dispatched with bounded parallelism.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	timer := logging.StartTimer(logging.CategoryEmbed, "Gateway.EmbedBatch")
	defer timer.Stop()

	vecs := make([][]float32, len(texts))
	var missIdx []int

	g.mu.Lock()
	for i, text := range texts {
		if vec, ok := g.lookupLocked(textKey(text)); ok {
			vecs[i] = vec
		} else {
			missIdx = append(missIdx, i)
		}
	}
	g.mu.Unlock()

	logging.EmbedDebug("EmbedBatch: %d texts, %d cache hits, %d misses",
		len(texts), len(texts)-len(missIdx), len(missIdx))

	if len(missIdx) == 0 {
		return vecs, nil
	}

	// Fetch misses batch by batch. Results land directly in their original
	// slots, so ordering survives parallel dispatch.
	fetched := make([][]float32, len(missIdx))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelBatches)

	for start := 0; start < len(missIdx); start += g.batchSize {
		end := start + g.batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		start, end := start, end
		eg.Go(func() error {
			batch := make([]string, 0, end-start)
			for _, idx := range missIdx[start:end] {
				batch = append(batch, texts[idx])
			}
			out, err := g.engine.EmbedBatch(egCtx, batch)
			if err != nil {
				return err
			}
			copy(fetched[start:end], out)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		// Propagate uncached: the whole call fails rather than handing the
		// caller a mix of real and missing vectors.
		return nil, err
	}

	g.mu.Lock()
	for j, idx := range missIdx {
		vecs[idx] = fetched[j]
		g.insertLocked(textKey(texts[idx]), fetched[j])
	}
	g.mu.Unlock()

	return vecs, nil
}

// Dimensions returns the wrapped engine's dimensionality.
func (g *Gateway) Dimensions() int {
	return g.engine.Dimensions()
}

// Name returns the wrapped engine's name.
func (g *Gateway) Name() string {
	return g.engine.Name()
}

// CacheLen reports the number of cached vectors.
func (g *Gateway) CacheLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cache)
}

func (g *Gateway) lookupLocked(key uint64) ([]float32, bool) {
	el, ok := g.cache[key]
	if !ok {
		return nil, false
	}
	g.order.MoveToFront(el)
	return el.Value.(*cacheEntry).vec, true
}

func (g *Gateway) insertLocked(key uint64, vec []float32) {
	if el, ok := g.cache[key]; ok {
		g.order.MoveToFront(el)
		el.Value.(*cacheEntry).vec = vec
		return
	}
	g.cache[key] = g.order.PushFront(&cacheEntry{key: key, vec: vec})
	for len(g.cache) > g.cacheSize {
		oldest := g.order.Back()
		if oldest == nil {
			break
		}
		g.order.Remove(oldest)
		delete(g.cache, oldest.Value.(*cacheEntry).key)
	}
}
