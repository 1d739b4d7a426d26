package clone

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erp/agreementclone/internal/domain/agreement"
	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/erp/agreementclone/internal/domain/shared"
	"github.com/erp/agreementclone/internal/infrastructure/checkpoint"
	"github.com/erp/agreementclone/internal/infrastructure/commerce"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	opsToken    = "ops-token"
	vendorToken = "vendor-token"
	tunnelToken = "tunnel-token"
)

var fixedNow = time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

// call is one request received by the fake platform.
type call struct {
	Method   string
	Path     string
	RawQuery string
	Token    string
	Body     agreement.Record
}

type handler func(c call) (int, any)

// fakePlatform is an httptest server standing in for the commerce API.
type fakePlatform struct {
	server *httptest.Server
	mu     sync.Mutex
	routes map[string]handler
	calls  []call
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	f := &fakePlatform{routes: map[string]handler{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		c := call{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Token:    strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		}
		if len(data) > 0 {
			c.Body, _ = agreement.DecodeRecord(data)
		}

		f.mu.Lock()
		f.calls = append(f.calls, c)
		h, ok := f.routes[r.Method+" "+r.URL.Path]
		f.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not found"}`))
			return
		}
		status, body := h(c)
		w.WriteHeader(status)
		if body != nil {
			json.NewEncoder(w).Encode(body)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePlatform) on(method, path string, h handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = h
}

func (f *fakePlatform) reply(method, path string, status int, body any) {
	f.on(method, path, func(call) (int, any) { return status, body })
}

func (f *fakePlatform) received(method, path string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakePlatform) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakePlatform) api(t *testing.T, token string) *commerce.API {
	t.Helper()
	client, err := commerce.NewClient(f.server.URL, token,
		commerce.WithLogger(zaptest.NewLogger(t)),
		commerce.WithSleeper(commerce.SleeperFunc(func(context.Context, time.Duration) error { return nil })),
	)
	require.NoError(t, err)
	return commerce.NewAPI(client)
}

func (f *fakePlatform) apis(t *testing.T) APIs {
	return APIs{Ops: f.api(t, opsToken), Vendor: f.api(t, vendorToken)}
}

// page wraps items in a single page collection response.
func page(items ...any) map[string]any {
	if items == nil {
		items = []any{}
	}
	return map[string]any{
		"$meta": map[string]any{"pagination": map[string]any{"offset": 0, "limit": commerce.DefaultPageSize, "total": len(items)}},
		"data":  items,
	}
}

// stubValidator counts calls and returns err.
type stubValidator struct {
	calls int
	err   error
}

func (v *stubValidator) Validate(_ context.Context, agreementID string) (agreement.Record, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return agreement.Record{"id": agreementID, "status": StatusActive}, nil
}

// memoryRuns is an in-memory run ledger.
type memoryRuns struct {
	mu   sync.Mutex
	runs []pipeline.Run
}

func (m *memoryRuns) Save(_ context.Context, run *pipeline.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = *run
			return nil
		}
	}
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memoryRuns) FindByAgreement(_ context.Context, agreementID string, limit int) ([]pipeline.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pipeline.Run
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].AgreementID == agreementID {
			out = append(out, m.runs[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRuns) Latest(ctx context.Context, agreementID string, stage pipeline.Stage) (*pipeline.Run, error) {
	runs, _ := m.FindByAgreement(ctx, agreementID, 0)
	for _, r := range runs {
		if r.Stage == stage {
			return &r, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memoryRuns) last(t *testing.T) pipeline.Run {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.runs)
	return m.runs[len(m.runs)-1]
}

type fixture struct {
	platform  *fakePlatform
	store     *checkpoint.Store
	validator *stubValidator
	runs      *memoryRuns
	service   *Service
}

func newFixture(t *testing.T, agreementID string) *fixture {
	t.Helper()
	f := &fixture{
		platform:  newFakePlatform(t),
		validator: &stubValidator{},
		runs:      &memoryRuns{},
	}
	f.store = checkpoint.NewStore(t.TempDir(), agreementID, checkpoint.WithLogger(zaptest.NewLogger(t)))
	f.service = f.newService(t, f.platform.apis(t))
	return f
}

func (f *fixture) newService(t *testing.T, apis APIs) *Service {
	t.Helper()
	svc, err := NewService(f.store, apis,
		WithValidator(f.validator),
		WithRunRepository(f.runs),
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	return svc
}

func (f *fixture) write(t *testing.T, a pipeline.Artifact, rec agreement.Record) {
	t.Helper()
	require.NoError(t, f.store.WriteJSON(context.Background(), a, rec))
}

func mustDecode(t *testing.T, s string) agreement.Record {
	t.Helper()
	rec, err := agreement.DecodeRecord([]byte(s))
	require.NoError(t, err)
	return rec
}

// sourceSubscription is an active subscription as listed by the dump query.
func sourceSubscription(t *testing.T, id, vendorID string) agreement.Record {
	return mustDecode(t, `{
		"id": "`+id+`",
		"name": "Subscription `+id+`",
		"status": "Active",
		"externalIds": {"vendor": "`+vendorID+`"},
		"agreement": {"id": "AGR-1", "name": "Contoso"},
		"buyer": {"id": "BUY-1", "name": "Contoso Buyer"},
		"seller": {"id": "SEL-1", "name": "Seller"},
		"terms": {"period": "1m", "commitment": "1y"},
		"price": {"defaultMarkup": 10},
		"lines": [
			{"id": "LIN-1", "status": "Active", "quantity": 3,
			 "item": {"id": "ITM-1", "name": "Office"},
			 "price": {"markup": 15.5, "margin": 13.42, "unitPP": 100, "unitSP": 115.5, "currency": "USD"}}
		]
	}`)
}
