package criteria

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/medmatch/trial-matcher/internal/trialindex"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type stubRedis struct {
	values map[string]string
	getErr error
	setErr error
	sets   map[string]string
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if s.getErr != nil {
		return redis.NewStringResult("", s.getErr)
	}
	value, ok := s.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (s *stubRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	if s.setErr != nil {
		return redis.NewStatusResult("", s.setErr)
	}
	if s.sets == nil {
		s.sets = make(map[string]string)
	}
	s.sets[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

type stubRegistry struct {
	criteria map[string][]trialindex.Criterion
	err      error
	calls    int
}

func (s *stubRegistry) Lookup(_ context.Context, nctID string) ([]trialindex.Criterion, bool, error) {
	s.calls++
	if s.err != nil {
		return nil, false, s.err
	}
	criteria, ok := s.criteria[nctID]
	return criteria, ok, nil
}

func testCache(client redisClient) *Cache {
	return &Cache{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		ttl:       DefaultTTL,
		logger:    zap.NewNop(),
	}
}

func testCriteria(texts ...string) []trialindex.Criterion {
	criteria := make([]trialindex.Criterion, 0, len(texts))
	for i, text := range texts {
		criteria = append(criteria, trialindex.Criterion{
			Text:     text,
			Polarity: trialindex.PolarityInclusion,
			Index:    i,
		})
	}
	return criteria
}

func TestCacheRoundTrip(t *testing.T) {
	stub := &stubRedis{values: map[string]string{}}
	cache := testCache(stub)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "NCT001"); ok {
		t.Fatalf("expected a miss on an empty cache")
	}

	want := testCriteria("Age 18 or older")
	cache.Put(ctx, "NCT001", want)

	payload, ok := stub.sets["trial_criteria:NCT001"]
	if !ok {
		t.Fatalf("expected a prefixed cache write, got %v", stub.sets)
	}

	stub.values["trial_criteria:NCT001"] = payload
	got, ok := cache.Get(ctx, "NCT001")
	if !ok || len(got) != 1 || got[0].Text != want[0].Text {
		t.Fatalf("unexpected cached criteria: %v", got)
	}
}

func TestCacheSwallowsBackendErrors(t *testing.T) {
	cache := testCache(&stubRedis{getErr: errors.New("connection refused"), setErr: errors.New("connection refused")})
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "NCT001"); ok {
		t.Fatalf("expected backend errors to read as misses")
	}
	cache.Put(ctx, "NCT001", testCriteria("criterion"))
}

func TestCacheDiscardsCorruptEntry(t *testing.T) {
	cache := testCache(&stubRedis{values: map[string]string{
		"trial_criteria:NCT001": "{not valid json",
	}})

	if _, ok := cache.Get(context.Background(), "NCT001"); ok {
		t.Fatalf("expected corrupt entry to read as a miss")
	}
}

func TestSourceResolutionOrder(t *testing.T) {
	registryList := testCriteria("From registry")
	cachedPayload, _ := json.Marshal(testCriteria("From cache"))

	stubCache := &stubRedis{values: map[string]string{
		"trial_criteria:NCT001": string(cachedPayload),
	}}
	reg := &stubRegistry{criteria: map[string][]trialindex.Criterion{
		"NCT001": registryList,
		"NCT002": registryList,
	}}

	source := &Source{cache: testCache(stubCache), registry: reg, logger: zap.NewNop()}
	candidate := &trialindex.TrialCandidate{NCTID: "NCT001", Criteria: testCriteria("From index")}

	got := source.Resolve(context.Background(), candidate)
	if got[0].Text != "From cache" {
		t.Fatalf("expected the cache to win, got %v", got)
	}
	if reg.calls != 0 {
		t.Fatalf("registry must not be queried on a cache hit")
	}

	// Miss falls through to the registry and writes back.
	candidate2 := &trialindex.TrialCandidate{NCTID: "NCT002", Criteria: testCriteria("From index")}
	got = source.Resolve(context.Background(), candidate2)
	if got[0].Text != "From registry" {
		t.Fatalf("expected the registry result, got %v", got)
	}
	if _, ok := stubCache.sets["trial_criteria:NCT002"]; !ok {
		t.Fatalf("expected a cache write-back after a registry hit")
	}
}

func TestSourceFallsBackToIndexedCriteria(t *testing.T) {
	reg := &stubRegistry{err: errors.New("database unreachable")}
	source := &Source{registry: reg, logger: zap.NewNop()}
	candidate := &trialindex.TrialCandidate{NCTID: "NCT001", Criteria: testCriteria("From index")}

	got := source.Resolve(context.Background(), candidate)
	if got[0].Text != "From index" {
		t.Fatalf("expected indexed criteria fallback, got %v", got)
	}
}

func TestSourceWithoutBackends(t *testing.T) {
	source := NewSource(nil, nil, zap.NewNop())
	candidate := &trialindex.TrialCandidate{NCTID: "NCT001", Criteria: testCriteria("From index")}

	got := source.Resolve(context.Background(), candidate)
	if len(got) != 1 || got[0].Text != "From index" {
		t.Fatalf("expected indexed criteria, got %v", got)
	}
}
