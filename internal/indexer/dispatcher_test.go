package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/omenindexer/internal/domain"
	"github.com/alanyoungcy/omenindexer/internal/store/memory"
)

type brokenStore struct {
	*memory.Store
}

var errConnReset = errors.New("connection reset")

func (brokenStore) Get(context.Context, domain.EntityKind, string) (json.RawMessage, error) {
	return nil, errConnReset
}

func TestDispatchUnknownKindIsSkipped(t *testing.T) {
	h := newHarness(t, testConfig())
	res, err := h.disp.Dispatch(t.Context(), h.store, domain.Event{Kind: "Mystery"})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestDispatchWrongPayloadIsSkipped(t *testing.T) {
	h := newHarness(t, testConfig())
	res, err := h.disp.Dispatch(t.Context(), h.store, domain.Event{Kind: domain.EventBuy, Payload: &domain.Sell{}})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestDispatchStoreFailureIsFatal(t *testing.T) {
	h := newHarness(t, testConfig())
	_, err := h.disp.Dispatch(t.Context(), brokenStore{memory.New()}, domain.Event{
		Kind:    domain.EventFinalize,
		Payload: &domain.Finalize{QuestionID: questionID},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errConnReset)
}

func TestDispatchLowercasesAddress(t *testing.T) {
	h := newHarness(t, testConfig())
	h.emit(domain.EventPairCreated, uniFactory, created, &domain.PairCreated{Token0: gno, Token1: weth, Pair: gnoWethPair})
	res := h.emit(domain.EventSync, "0x3E8468F66D30FC99F745481D4B383F89861702C6", created,
		&domain.Sync{Reserve0: bi("4"), Reserve1: bi("2")})
	require.False(t, res.Skipped)
	assert.Equal(t, "4", get[domain.UniswapPair](h, gnoWethPair).Reserve0.String())
}

func TestKindsCoversEveryPayload(t *testing.T) {
	h := newHarness(t, testConfig())
	for _, k := range h.disp.Kinds() {
		_, err := domain.NewPayload(k)
		assert.NoError(t, err, k)
	}
	assert.Len(t, h.disp.Kinds(), 28)
}

type flakyReader struct{ *fakeReader }

func (flakyReader) Decimals(context.Context, string, uint64) (uint8, error) {
	return 0, errConnReset
}

func TestDispatchReaderOutageIsFatal(t *testing.T) {
	h := newHarness(t, testConfig())
	disp := New(testConfig(), flakyReader{h.reader}, h.disp.logger)
	_, err := disp.Dispatch(t.Context(), h.store, domain.Event{
		Kind:        domain.EventPairCreated,
		Address:     uniFactory,
		BlockNumber: 1,
		Payload:     &domain.PairCreated{Token0: gno, Token1: weth, Pair: "0x" + strings.Repeat("5", 40)},
	})
	require.ErrorIs(t, err, errConnReset)
}
