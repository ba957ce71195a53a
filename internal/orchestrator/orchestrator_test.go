package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Appraisily/image-generation-service/internal/cache"
	"github.com/Appraisily/image-generation-service/internal/cdn"
	"github.com/Appraisily/image-generation-service/internal/events"
	"github.com/Appraisily/image-generation-service/internal/profile"
	"github.com/Appraisily/image-generation-service/internal/prompt"
	"github.com/Appraisily/image-generation-service/internal/provider"
	"github.com/Appraisily/image-generation-service/internal/upload"
)

// fakeProvider returns errs in order, then succeeds.
type fakeProvider struct {
	mu        sync.Mutex
	errs      []error
	calls     int
	prompts   []string
	sourceURL string
	mimeType  string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, p string) (*provider.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, p)
	if err := ctx.Err(); err != nil {
		return nil, provider.Classify(0, nil, err)
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	mime := f.mimeType
	if mime == "" {
		mime = "image/png"
	}
	return &provider.Artifact{Bytes: []byte("\x89PNG fake"), MIMEType: mime, SourceURL: f.sourceURL}, nil
}

type fakeCDN struct {
	mu    sync.Mutex
	fail  bool
	calls int
	names []string
}

func (f *fakeCDN) Name() string { return "fake-cdn" }

func (f *fakeCDN) Upload(ctx context.Context, src cdn.Source, opts cdn.Options) (*cdn.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.names = append(f.names, opts.FileName)
	if f.fail {
		return nil, errors.New("cdn down")
	}
	return &cdn.Result{URL: "https://cdn.test/" + opts.Key(), FileID: "file-" + opts.FileName, SizeBytes: 9}, nil
}

type failingStore struct {
	lookupErr error
	putErr    error
	puts      int
}

func (s *failingStore) Lookup(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	return nil, s.lookupErr
}

func (s *failingStore) Put(ctx context.Context, key cache.Key, in cache.PutInput) (*cache.Entry, error) {
	s.puts++
	return nil, s.putErr
}

type recordingNotifier struct {
	events []events.Generated
}

func (n *recordingNotifier) PublishGenerated(ctx context.Context, evt events.Generated) error {
	n.events = append(n.events, evt)
	return nil
}

type harness struct {
	orch     *Orchestrator
	provider *fakeProvider
	cdn      *fakeCDN
	store    cache.Store
	notifier *recordingNotifier
}

func newHarness(t *testing.T, store cache.Store) *harness {
	t.Helper()
	if store == nil {
		fs, err := cache.NewFileStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		store = fs
	}
	h := &harness{
		provider: &fakeProvider{},
		cdn:      &fakeCDN{},
		store:    store,
		notifier: &recordingNotifier{},
	}
	orch, err := New(Deps{
		Store:    store,
		Policy:   cache.NewPolicy(0),
		Prompts:  prompt.NewBuilder(nil, 0),
		Provider: h.provider,
		Uploader: upload.NewDefault(h.cdn, upload.WithFolder("profiles")),
		Notifier: h.notifier,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orch = orch
	return h
}

func appraiser(id, specialization string) profile.GenerationRequest {
	return profile.NewRequest(id, profile.Appraiser, map[string]string{"specialization": specialization, "name": "Someone " + id})
}

func TestGenerate_EndToEndCaching(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first := h.orch.GenerateForEntity(ctx, appraiser("a1", "modern"))
	if !first.OK() || first.Cached {
		t.Fatalf("expected fresh generation, got %+v", first)
	}
	if first.ImageURL != "https://cdn.test/profiles/appraiser-a1" {
		t.Errorf("unexpected URL %s", first.ImageURL)
	}
	if first.Source != "fake" || first.PromptSource != string(prompt.SourceTemplate) || first.Prompt == "" {
		t.Errorf("unexpected provenance %+v", first)
	}

	second := h.orch.GenerateForEntity(ctx, appraiser("a1", "modern"))
	if !second.Cached || second.ImageURL != first.ImageURL || second.Source != SourceCache {
		t.Fatalf("expected cached result, got %+v", second)
	}
	if h.provider.calls != 1 || h.cdn.calls != 1 {
		t.Errorf("expected no network calls on cache hit, provider=%d cdn=%d", h.provider.calls, h.cdn.calls)
	}

	third := h.orch.GenerateForEntity(ctx, appraiser("a1", "antique"))
	if !third.OK() || third.Cached {
		t.Fatalf("expected regeneration after attribute change, got %+v", third)
	}
	if h.provider.calls != 2 {
		t.Errorf("expected second provider call, got %d", h.provider.calls)
	}
	if len(h.notifier.events) != 2 {
		t.Errorf("expected 2 generated events, got %d", len(h.notifier.events))
	}
}

func TestGenerate_FormatChangeOverwritesSameObject(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first := h.orch.GenerateForEntity(ctx, appraiser("a1", "modern"))
	h.provider.mimeType = "image/jpeg"
	second := h.orch.GenerateForEntity(ctx, appraiser("a1", "modern").WithForce(true))
	if !first.OK() || !second.OK() || second.Cached {
		t.Fatalf("expected two fresh generations, got %+v %+v", first, second)
	}
	if len(h.cdn.names) != 2 || h.cdn.names[0] != h.cdn.names[1] {
		t.Fatalf("expected both uploads under one name, got %v", h.cdn.names)
	}
	if first.ImageURL != second.ImageURL {
		t.Errorf("expected stable URL across formats, got %s and %s", first.ImageURL, second.ImageURL)
	}
}

func TestGenerate_SameIDAcrossTypesCachedSeparately(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	loc := profile.NewRequest("a1", profile.Location, map[string]string{"name": "Harbor Gallery", "city": "Boston"})

	if res := h.orch.GenerateForEntity(ctx, appraiser("a1", "modern")); !res.OK() {
		t.Fatalf("unexpected failure %+v", res)
	}
	if res := h.orch.GenerateForEntity(ctx, loc); !res.OK() || res.Cached {
		t.Fatalf("expected fresh location generation, got %+v", res)
	}
	if res := h.orch.GenerateForEntity(ctx, appraiser("a1", "modern")); !res.Cached {
		t.Errorf("expected appraiser entry to survive the location write, got %+v", res)
	}
	if res := h.orch.GenerateForEntity(ctx, loc); !res.Cached {
		t.Errorf("expected location entry to be cached, got %+v", res)
	}
	if h.provider.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", h.provider.calls)
	}
}

func TestGenerate_NameChangeStaysCached(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	req := appraiser("a1", "modern")
	h.orch.GenerateForEntity(ctx, req)

	renamed := profile.NewRequest("a1", profile.Appraiser, map[string]string{"specialization": "modern", "name": "New Name"})
	if res := h.orch.GenerateForEntity(ctx, renamed); !res.Cached {
		t.Errorf("expected name change to keep the cached image, got %+v", res)
	}
}

func TestGenerate_ForceBypassesCache(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.orch.GenerateForEntity(ctx, appraiser("a1", "modern"))

	res := h.orch.GenerateForEntity(ctx, appraiser("a1", "modern").WithForce(true))
	if res.Cached || h.provider.calls != 2 {
		t.Errorf("expected forced regeneration, got %+v calls=%d", res, h.provider.calls)
	}
}

func TestGenerate_BillingBlockedNoRetry(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.errs = []error{provider.Classify(402, []byte("payment required"), nil)}

	res := h.orch.GenerateForEntity(context.Background(), appraiser("a1", "modern"))
	if res.ErrorKind != ErrBillingBlocked {
		t.Fatalf("expected BillingBlocked, got %+v", res)
	}
	if h.provider.calls != 1 {
		t.Errorf("expected exactly 1 provider call, got %d", h.provider.calls)
	}
	if h.cdn.calls != 0 {
		t.Errorf("expected no upload, got %d", h.cdn.calls)
	}
}

func TestGenerate_TransientRetriedOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.errs = []error{provider.Classify(503, []byte("overloaded"), nil)}

	res := h.orch.GenerateForEntity(context.Background(), appraiser("a1", "modern"))
	if !res.OK() {
		t.Fatalf("expected success after retry, got %+v", res)
	}
	if h.provider.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", h.provider.calls)
	}
	if h.provider.prompts[0] != h.provider.prompts[1] {
		t.Error("expected the retry to reuse the same prompt")
	}
}

func TestGenerate_TransientTwiceIsProviderError(t *testing.T) {
	h := newHarness(t, nil)
	transient := provider.Classify(429, []byte("slow down"), nil)
	h.provider.errs = []error{transient, transient, transient}

	res := h.orch.GenerateForEntity(context.Background(), appraiser("a1", "modern"))
	if res.ErrorKind != ErrProvider {
		t.Fatalf("expected ProviderError, got %+v", res)
	}
	if h.provider.calls != 2 {
		t.Errorf("expected retry bounded to 2 calls, got %d", h.provider.calls)
	}
}

func TestGenerate_FatalRetriedOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.errs = []error{provider.Malformed("response contained no image")}

	res := h.orch.GenerateForEntity(context.Background(), appraiser("a1", "modern"))
	if !res.OK() {
		t.Fatalf("expected success after one retry, got %+v", res)
	}
	if h.provider.calls != 2 {
		t.Errorf("expected 2 calls, got %d", h.provider.calls)
	}
	if h.provider.prompts[0] != h.provider.prompts[1] {
		t.Errorf("expected the same prompt on retry, got %q then %q", h.provider.prompts[0], h.provider.prompts[1])
	}
}

func TestGenerate_FatalTwiceIsProviderError(t *testing.T) {
	h := newHarness(t, nil)
	fatal := provider.Classify(400, []byte("bad prompt"), nil)
	h.provider.errs = []error{fatal, fatal, fatal}

	res := h.orch.GenerateForEntity(context.Background(), appraiser("a1", "modern"))
	if res.ErrorKind != ErrProvider || h.provider.calls != 2 {
		t.Errorf("expected two calls and ProviderError, got %+v calls=%d", res, h.provider.calls)
	}
	if !strings.Contains(res.Message, "bad prompt") {
		t.Errorf("expected provider message, got %q", res.Message)
	}
}

func TestGenerate_Cancelled(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.orch.GenerateForEntity(ctx, appraiser("a1", "modern"))
	if res.ErrorKind != ErrProvider {
		t.Fatalf("expected ProviderError, got %+v", res)
	}
	if h.provider.calls != 1 {
		t.Errorf("expected no retry after cancellation, got %d calls", h.provider.calls)
	}
}

func TestGenerate_Validation(t *testing.T) {
	h := newHarness(t, nil)
	res := h.orch.GenerateForEntity(context.Background(), profile.NewRequest("", profile.Appraiser, nil))
	if res.ErrorKind != ErrValidation || res.Message == "" {
		t.Errorf("expected ValidationError, got %+v", res)
	}
	res = h.orch.GenerateForEntity(context.Background(), profile.NewRequest("a1", "dealer", nil))
	if res.ErrorKind != ErrValidation {
		t.Errorf("expected ValidationError for unknown type, got %+v", res)
	}
	if h.provider.calls != 0 {
		t.Error("expected no provider call on invalid input")
	}
}

func TestGenerate_UploadFailureDegradesToProviderURL(t *testing.T) {
	h := newHarness(t, nil)
	h.cdn.fail = true
	h.provider.sourceURL = "https://provider.test/sample.png"

	res := h.orch.GenerateForEntity(context.Background(), appraiser("a1", "modern"))
	if !res.OK() || !res.Degraded || res.ImageURL != h.provider.sourceURL {
		t.Fatalf("expected degraded provider URL, got %+v", res)
	}
	if h.cdn.calls != 3 {
		t.Errorf("expected all three tiers to hit the CDN, got %d", h.cdn.calls)
	}
	if e, _ := h.store.Lookup(context.Background(), cache.Key{Type: "appraiser", ID: "a1"}); e != nil {
		t.Errorf("expected degraded result to stay uncached, got %+v", e)
	}
}

func TestGenerate_UploadError(t *testing.T) {
	h := newHarness(t, nil)
	h.cdn.fail = true

	res := h.orch.GenerateForEntity(context.Background(), appraiser("a1", "modern"))
	if res.ErrorKind != ErrUpload {
		t.Fatalf("expected UploadError, got %+v", res)
	}
	if !strings.Contains(res.Message, "all upload tiers failed") {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestGenerate_PersistFailureStillSucceeds(t *testing.T) {
	store := &failingStore{putErr: errors.New("disk full")}
	h := newHarness(t, store)

	res := h.orch.GenerateForEntity(context.Background(), appraiser("a1", "modern"))
	if !res.OK() || res.Cached {
		t.Fatalf("expected success despite persistence failure, got %+v", res)
	}
	if store.puts != 1 {
		t.Errorf("expected one put attempt, got %d", store.puts)
	}
}

func TestGenerate_LookupErrorIsMiss(t *testing.T) {
	store := &failingStore{lookupErr: errors.New("corrupt manifest")}
	h := newHarness(t, store)

	res := h.orch.GenerateForEntity(context.Background(), appraiser("a1", "modern"))
	if !res.OK() || h.provider.calls != 1 {
		t.Errorf("expected generation on lookup error, got %+v", res)
	}
}

func TestGenerate_StaleEntryRegenerates(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir(), cache.WithClock(func() time.Time {
		return time.Now().Add(-365 * 24 * time.Hour)
	}))
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, store)
	ctx := context.Background()

	h.orch.GenerateForEntity(ctx, appraiser("a1", "modern"))
	res := h.orch.GenerateForEntity(ctx, appraiser("a1", "modern"))
	if res.Cached {
		t.Error("expected entry older than max age to be regenerated")
	}
	if h.provider.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", h.provider.calls)
	}
}

func TestGenerate_ConcurrentEntities(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := []string{"a1", "a2", "a3", "a4", "a5", "a6"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if res := h.orch.GenerateForEntity(ctx, appraiser(id, "coins")); !res.OK() {
				t.Errorf("%s: unexpected failure %+v", id, res)
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		if e, err := h.store.Lookup(ctx, cache.Key{Type: "appraiser", ID: id}); err != nil || e == nil {
			t.Errorf("expected cache entry for %s, got %v %v", id, e, err)
		}
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("expected error for missing deps")
	}
}
