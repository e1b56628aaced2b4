package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/store/memory"
)

const (
	ctAddr       = "0xc59b0e4de5f1248c1140964e0ff287b192407e0c"
	fpmmFactory  = "0x89023deb1d9a9a62ff3a5ca8f23be8d87a576220"
	realitioAddr = "0x325a2e0f3cca2ddbaebb4dfc38df8d19ca165b47"
	uniFactory   = "0x5c69bee701ef814a2b6a3edd4b1652cb9cc5aa6f"
	registryAddr = "0x93db90445b76329e9ed96ecd74e76d8fbf2590d8"
	tcrAddr      = "0xb72103ee8a5a2b7e1eca39c6e6d47b6c5b9e4d11"
	stakingAddr  = "0x583d56828996060adf22c4d8d27371fd5b7f637b"
	dai          = "0x6b175474e89094c44da98b954eedeac495271d0f"
	weth         = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	gno          = "0x6810e776880c02933d47db1b9fc05908e5386b96"

	fpmmAddr   = "0x1111111111111111111111111111111111111111"
	funderAddr = "0x2222222222222222222222222222222222222222"
	buyerAddr  = "0x3333333333333333333333333333333333333333"
	oracleAddr = "0x4444444444444444444444444444444444444444"

	created = int64(1_600_000_000)
)

var (
	questionID  = "0x" + strings.Repeat("a", 64)
	conditionID = "0x" + strings.Repeat("c", 64)
)

type tcrItem struct {
	data   []byte
	status domain.TCRStatus
}

// fakeReader serves canned view-call results and counts calls.
type fakeReader struct {
	mu       sync.Mutex
	decimals map[string]uint8
	pairs    map[string]string
	items    map[string]tcrItem
	executor map[string]string
	calls    map[string]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		decimals: map[string]uint8{dai: 18, weth: 18, gno: 18},
		pairs:    map[string]string{},
		items:    map[string]tcrItem{},
		executor: map[string]string{},
		calls:    map[string]int{},
	}
}

var errReverted = fmt.Errorf("%w: execution reverted", domain.ErrReverted)

func (r *fakeReader) count(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[call]++
}

func (r *fakeReader) Decimals(_ context.Context, token string, _ uint64) (uint8, error) {
	r.count("decimals:" + token)
	d, ok := r.decimals[token]
	if !ok {
		return 0, errReverted
	}
	return d, nil
}

func (r *fakeReader) Name(context.Context, string, uint64) (string, error) {
	return "", errReverted
}

func (r *fakeReader) Symbol(context.Context, string, uint64) (string, error) {
	return "", errReverted
}

func (r *fakeReader) GetPair(_ context.Context, factory, a, b string, _ uint64) (string, error) {
	if factory != uniFactory {
		return "", errReverted
	}
	if p, ok := r.pairs[a+b]; ok {
		return p, nil
	}
	return r.pairs[b+a], nil
}

func (r *fakeReader) GetItemInfo(_ context.Context, _ string, itemID string, _ uint64) ([]byte, domain.TCRStatus, error) {
	it, ok := r.items[itemID]
	if !ok {
		return nil, 0, errReverted
	}
	return it.data, it.status, nil
}

func (r *fakeReader) ExecutorByProvider(_ context.Context, _ string, provider string, _ uint64) (string, error) {
	e, ok := r.executor[provider]
	if !ok {
		return "", errReverted
	}
	return e, nil
}

type harness struct {
	t      *testing.T
	store  *memory.Store
	disp   *Dispatcher
	reader *fakeReader
	block  uint64
}

func testConfig() Config {
	return Config{
		ConditionalTokens:       ctAddr,
		UniswapFactory:          uniFactory,
		StakingRewardsFactory:   stakingAddr,
		WETH:                    weth,
		Stablecoins:             []string{dai},
		CurationListID:          4,
		NuancedBinaryTemplateID: 6,
	}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	reader := newFakeReader()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &harness{
		t:      t,
		store:  memory.New(),
		disp:   New(cfg, reader, logger),
		reader: reader,
		block:  100,
	}
}

// emit dispatches one event and commits its writes like the pipeline does.
func (h *harness) emit(kind domain.EventKind, addr string, ts int64, p any) Result {
	h.t.Helper()
	h.block++
	ev := domain.Event{
		Kind:           kind,
		Address:        addr,
		BlockNumber:    h.block,
		BlockTimestamp: ts,
		TxHash:         fmt.Sprintf("0x%064x", h.block),
		Payload:        p,
	}
	ctx := context.Background()
	res, err := h.disp.Dispatch(ctx, h.store, ev)
	require.NoError(h.t, err)
	require.NoError(h.t, h.store.Apply(ctx, domain.Batch{
		Writes:     res.Writes,
		Checkpoint: domain.Checkpoint{Name: "test", BlockNumber: ev.BlockNumber, TxHash: ev.TxHash},
	}))
	return res
}

func (h *harness) lastTx() string { return fmt.Sprintf("0x%064x", h.block) }

func get[T any, P interface {
	*T
	domain.Entity
}](h *harness, id string) P {
	h.t.Helper()
	kind := P(new(T)).EntityKind()
	raw, err := h.store.Get(context.Background(), kind, id)
	require.NoError(h.t, err, "%s %s", kind, id)
	p := P(new(T))
	require.NoError(h.t, json.Unmarshal(raw, p))
	return p
}

func (h *harness) exists(kind domain.EntityKind, id string) bool {
	_, err := h.store.Get(context.Background(), kind, id)
	return err == nil
}
