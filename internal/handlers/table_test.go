package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corelane/usched/internal/coroutine"
	"github.com/corelane/usched/internal/interfaces"
	"github.com/corelane/usched/internal/pool"
	"github.com/corelane/usched/internal/wire"
)

type fakeBackend struct {
	data map[string]string
	scanCalls int
	checkpointsAt int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: map[string]string{"a": "1"}}
}

func (f *fakeBackend) Get(key []byte) ([]byte, bool, error) {
	v, ok := f.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (f *fakeBackend) Put(key, value []byte) error {
	f.data[string(key)] = string(value)
	return nil
}

func (f *fakeBackend) Delete(key []byte) (bool, error) {
	_, ok := f.data[string(key)]
	delete(f.data, string(key))
	return ok, nil
}

func (f *fakeBackend) Seek(key []byte) ([]byte, bool, error) {
	return nil, false, errors.New("not implemented")
}

func (f *fakeBackend) Scan(prefix []byte, limit int, checkpoint func()) ([]interfaces.KVPair, error) {
	f.scanCalls++
	checkpoint()
	f.checkpointsAt++
	return []interfaces.KVPair{{Key: []byte("a"), Value: []byte("1")}}, nil
}

func (f *fakeBackend) Close() error { return nil }

type alwaysRun struct{}

func (alwaysRun) ShouldYield() bool { return false }

func runHandler(t *testing.T, tbl *Table, typ wire.RequestType, req *pool.Request) {
	var c coroutine.Continuation
	c.Bootstrap(tbl.Resolve(typ))
	finished := c.Resume(req, alwaysRun{})
	require.True(t, finished)
}

func TestTableGetFound(t *testing.T) {
	tbl := Build(newFakeBackend())
	req := &pool.Request{Key: []byte("a")}
	runHandler(t, tbl, wire.Get, req)
	require.NoError(t, req.Err)
	require.Equal(t, true, req.Result)
	require.Equal(t, []byte("1"), req.Value)
}

func TestTableGetNotFound(t *testing.T) {
	tbl := Build(newFakeBackend())
	req := &pool.Request{Key: []byte("missing")}
	runHandler(t, tbl, wire.Get, req)
	require.NoError(t, req.Err)
	require.Equal(t, false, req.Result)
}

func TestTablePut(t *testing.T) {
	backend := newFakeBackend()
	tbl := Build(backend)
	req := &pool.Request{Key: []byte("x"), Value: []byte("y")}
	runHandler(t, tbl, wire.Put, req)
	require.NoError(t, req.Err)
	require.Equal(t, "y", backend.data["x"])
}

func TestTableDelete(t *testing.T) {
	backend := newFakeBackend()
	tbl := Build(backend)
	req := &pool.Request{Key: []byte("a")}
	runHandler(t, tbl, wire.Delete, req)
	require.Equal(t, true, req.Result)
	_, stillThere := backend.data["a"]
	require.False(t, stillThere)
}

func TestTableSeekPropagatesError(t *testing.T) {
	tbl := Build(newFakeBackend())
	req := &pool.Request{Key: []byte("a")}
	runHandler(t, tbl, wire.Seek, req)
	require.Error(t, req.Err)
}

func TestTableScanCallsCheckpoint(t *testing.T) {
	backend := newFakeBackend()
	tbl := Build(backend)
	req := &pool.Request{Prefix: []byte(""), Limit: 10}
	runHandler(t, tbl, wire.Scan, req)
	require.NoError(t, req.Err)
	require.Equal(t, 1, backend.scanCalls)
	require.Equal(t, 1, backend.checkpointsAt)
	rows := req.Result.([]interfaces.KVPair)
	require.Len(t, rows, 1)
}
