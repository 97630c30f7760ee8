package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serfrae/solder/internal/model"
)

type fakeQueryer struct {
	tuples []model.AccountTuple
	err    error

	gotAccount  string
	gotFrom     *int64
	gotTo       *int64
	gotSlot     int64
	gotSig      string
	gotBlockhash string
}

func (f *fakeQueryer) BySignature(_ context.Context, signature string) ([]model.AccountTuple, error) {
	f.gotSig = signature
	return f.tuples, f.err
}

func (f *fakeQueryer) ByAccount(_ context.Context, account string, from, to *int64) ([]model.AccountTuple, error) {
	f.gotAccount, f.gotFrom, f.gotTo = account, from, to
	return f.tuples, f.err
}

func (f *fakeQueryer) ByBlockhash(_ context.Context, blockhash string) ([]model.AccountTuple, error) {
	f.gotBlockhash = blockhash
	return f.tuples, f.err
}

func (f *fakeQueryer) BySlot(_ context.Context, slot int64) ([]model.AccountTuple, error) {
	f.gotSlot = slot
	return f.tuples, f.err
}

func decodeTuples(t *testing.T, rec *httptest.ResponseRecorder) []model.AccountTuple {
	t.Helper()
	var out []model.AccountTuple
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestGetBySignature(t *testing.T) {
	fq := &fakeQueryer{tuples: []model.AccountTuple{{Blockhash: "BH1", Slot: 100, BlockTime: 1700000000, Signature: "Sg1", Account: "A"}}}
	r := NewRouter(fq)

	req := httptest.NewRequest(http.MethodGet, "/tx/Sg1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Sg1", fq.gotSig)
	require.Len(t, decodeTuples(t, rec), 1)
}

func TestGetByAccountWithTimeBounds(t *testing.T) {
	fq := &fakeQueryer{}
	r := NewRouter(fq)

	req := httptest.NewRequest(http.MethodGet, "/account/A?from=100&to=200", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "A", fq.gotAccount)
	require.NotNil(t, fq.gotFrom)
	require.NotNil(t, fq.gotTo)
	require.Equal(t, int64(100), *fq.gotFrom)
	require.Equal(t, int64(200), *fq.gotTo)
}

func TestGetByAccountInvalidBound(t *testing.T) {
	r := NewRouter(&fakeQueryer{})

	req := httptest.NewRequest(http.MethodGet, "/account/A?from=notanumber", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Contains(t, body, "error")
}

func TestGetByBlockhash(t *testing.T) {
	fq := &fakeQueryer{}
	r := NewRouter(fq)

	req := httptest.NewRequest(http.MethodGet, "/block/BH1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "BH1", fq.gotBlockhash)
}

func TestGetBySlot(t *testing.T) {
	fq := &fakeQueryer{}
	r := NewRouter(fq)

	req := httptest.NewRequest(http.MethodGet, "/slot/100", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(100), fq.gotSlot)
}

func TestGetBySlotInvalid(t *testing.T) {
	r := NewRouter(&fakeQueryer{})

	req := httptest.NewRequest(http.MethodGet, "/slot/not-a-number", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryErrorReturns500(t *testing.T) {
	fq := &fakeQueryer{err: errors.New("connection reset")}
	r := NewRouter(fq)

	req := httptest.NewRequest(http.MethodGet, "/tx/Sg1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "connection reset", body["error"])
}

func TestHealthz(t *testing.T) {
	r := NewRouter(&fakeQueryer{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEmptyResultIsEmptyArrayNotNull(t *testing.T) {
	r := NewRouter(&fakeQueryer{tuples: nil})

	req := httptest.NewRequest(http.MethodGet, "/tx/unknown-signature", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.JSONEq(t, "[]", rec.Body.String())
}
