package can

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iop-labs/profiled/pkg/identity"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

type fakeGateway struct {
	objects   map[string][]byte
	published []publishBody
	removed   []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: make(map[string][]byte)}
}

func (g *fakeGateway) Upload(_ context.Context, id cid.Cid, data []byte) error {
	g.objects[id.String()] = data
	return nil
}

func (g *fakeGateway) Publish(_ context.Context, _ string, id cid.Cid, sequence uint64) error {
	g.published = append(g.published, publishBody{CID: id.String(), Sequence: sequence})
	return nil
}

func (g *fakeGateway) Remove(_ context.Context, id cid.Cid) error {
	g.removed = append(g.removed, id.String())
	delete(g.objects, id.String())
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeGateway, *store.Store) {
	t.Helper()
	st, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	gw := newFakeGateway()
	svc := NewService(st, kp, gw, Config{
		IPAddress:   "192.0.2.7",
		PrimaryPort: 16980,
		Latitude:    47_497_913,
		Longitude:   19_040_236,
	})
	return svc, gw, st
}

func TestRecordRoundTrip(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	rec := &ContactRecord{
		Version:     []byte{1, 0, 0},
		PublicKey:   kp.PublicKey,
		IPAddress:   "198.51.100.4",
		PrimaryPort: 16980,
		Latitude:    -33_868_820,
		Longitude:   151_209_290,
	}

	decoded := &ContactRecord{}
	require.NoError(t, decoded.Unmarshal(rec.Marshal()))
	assert.Equal(t, rec, decoded)

	// The CID is stable across re-encoding.
	id1, err := rec.CID()
	require.NoError(t, err)
	id2, err := decoded.CID()
	require.NoError(t, err)
	assert.True(t, id1.Equals(id2))
}

func TestRefreshPublishesWithRisingSequence(t *testing.T) {
	svc, gw, st := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Refresh(ctx))
	require.NoError(t, svc.Refresh(ctx))

	// One object upload, one name publication per refresh.
	assert.Len(t, gw.objects, 1)
	require.Len(t, gw.published, 2)
	assert.Equal(t, uint64(1), gw.published[0].Sequence)
	assert.Equal(t, uint64(2), gw.published[1].Sequence)
	assert.Equal(t, gw.published[0].CID, gw.published[1].CID)

	stored, err := st.GetSetting(ctx, models.SettingCanObjectHash)
	require.NoError(t, err)
	assert.Equal(t, gw.published[0].CID, stored)
}

func TestRefreshReplacesChangedRecord(t *testing.T) {
	svc, gw, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Refresh(ctx))
	oldCID := gw.published[0].CID

	svc.config.IPAddress = "192.0.2.99"
	require.NoError(t, svc.Refresh(ctx))

	require.Len(t, gw.published, 2)
	assert.NotEqual(t, oldCID, gw.published[1].CID)
	assert.Equal(t, []string{oldCID}, gw.removed)
	assert.Len(t, gw.objects, 1)
}

func TestDeleteWithdrawsRecord(t *testing.T) {
	svc, gw, st := newTestService(t)
	ctx := context.Background()

	// Nothing published yet: no-op.
	require.NoError(t, svc.Delete(ctx))
	assert.Empty(t, gw.removed)

	require.NoError(t, svc.Refresh(ctx))
	require.NoError(t, svc.Delete(ctx))

	assert.Len(t, gw.removed, 1)
	assert.Empty(t, gw.objects)

	stored, err := st.GetSetting(ctx, models.SettingCanObjectHash)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
