package search

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/identity"
	imagefs "github.com/iop-labs/profiled/pkg/imagestore/fs"
	"github.com/iop-labs/profiled/pkg/profile"
	"github.com/iop-labs/profiled/pkg/store"
	"github.com/iop-labs/profiled/pkg/store/models"
)

func newTestEngine(t *testing.T, config Config) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	images, err := imagefs.New(imagefs.Config{BasePath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = images.Close() })

	return NewEngine(st, images, config), st
}

func seedHosted(t *testing.T, st *store.Store, name, typ string, loc profile.Location) []byte {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	id := kp.NetworkID().Bytes()

	info := &profile.Info{
		Version:   []byte{1, 0, 0},
		PublicKey: kp.PublicKey,
		Name:      name,
		Type:      typ,
		Location:  loc,
	}
	row := &models.HostedIdentity{
		IdentityID:  id,
		PublicKey:   kp.PublicKey,
		Initialized: true,
	}
	row.ApplyProfile(info, info.Sign(kp.PrivateKey))
	require.NoError(t, st.CreateHostedIdentity(context.Background(), row))
	return id
}

func seedNeighborProfile(t *testing.T, st *store.Store, serverID []byte, name string) {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	info := &profile.Info{
		Version:   []byte{1, 0, 0},
		PublicKey: kp.PublicKey,
		Name:      name,
	}
	row := &models.NeighborIdentity{
		HostingServerID: serverID,
		IdentityID:      kp.NetworkID().Bytes(),
		PublicKey:       kp.PublicKey,
	}
	row.ApplyProfile(info, info.Sign(kp.PrivateKey))
	require.NoError(t, st.UpsertNeighborIdentity(context.Background(), row))
}

func seedNeighbor(t *testing.T, st *store.Store, initialized bool) []byte {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	id := kp.NetworkID().Bytes()
	require.NoError(t, st.UpsertNeighbor(context.Background(), &models.Neighbor{
		PeerContact: models.PeerContact{
			NetworkID:       id,
			IPAddress:       "192.0.2.9",
			PrimaryPort:     16987,
			SrNeighborPort:  16990,
			Initialized:     initialized,
			LastRefreshTime: time.Now(),
		},
	}))
	return id
}

func TestSearchByNameWildcard(t *testing.T) {
	e, st := newTestEngine(t, Config{})
	ctx := context.Background()

	seedHosted(t, st, "alice", "person", profile.Location{})
	seedHosted(t, st, "albert", "person", profile.Location{})
	seedHosted(t, st, "bob", "person", profile.Location{})

	resp, err := e.Search(ctx, &iop.ProfileSearchRequest{Name: "al*"})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), resp.TotalRecordCount)
	for _, r := range resp.Results {
		assert.True(t, r.IsHosted)
		assert.True(t, strings.HasPrefix(r.Profile.Profile.Name, "al"))
	}
}

func TestSearchIncludesInitializedNeighborsOnly(t *testing.T) {
	e, st := newTestEngine(t, Config{})
	ctx := context.Background()

	seedHosted(t, st, "local", "person", profile.Location{})

	ready := seedNeighbor(t, st, true)
	pending := seedNeighbor(t, st, false)
	seedNeighborProfile(t, st, ready, "remote-ready")
	seedNeighborProfile(t, st, pending, "remote-pending")

	resp, err := e.Search(ctx, &iop.ProfileSearchRequest{})
	require.NoError(t, err)
	require.Equal(t, uint32(2), resp.TotalRecordCount)

	names := make(map[string]bool)
	for _, r := range resp.Results {
		names[r.Profile.Profile.Name] = r.IsHosted
	}
	assert.Contains(t, names, "local")
	assert.Contains(t, names, "remote-ready")
	assert.NotContains(t, names, "remote-pending")
	assert.False(t, names["remote-ready"])

	hostedOnly, err := e.Search(ctx, &iop.ProfileSearchRequest{IncludeHostedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), hostedOnly.TotalRecordCount)
}

func TestSearchRadiusFilter(t *testing.T) {
	e, st := newTestEngine(t, Config{})
	ctx := context.Background()

	budapest := profile.Location{Latitude: 47_497_913, Longitude: 19_040_236}
	vienna := profile.Location{Latitude: 48_208_174, Longitude: 16_373_819}
	seedHosted(t, st, "near", "person", budapest)
	seedHosted(t, st, "far", "person", vienna)

	resp, err := e.Search(ctx, &iop.ProfileSearchRequest{
		Latitude:  budapest.Latitude,
		Longitude: budapest.Longitude,
		Radius:    50_000,
	})
	require.NoError(t, err)
	require.Equal(t, uint32(1), resp.TotalRecordCount)
	assert.Equal(t, "near", resp.Results[0].Profile.Profile.Name)
}

func TestSearchPagination(t *testing.T) {
	e, st := newTestEngine(t, Config{})
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		seedHosted(t, st, fmt.Sprintf("user-%d", i), "person", profile.Location{})
	}

	resp, err := e.Search(ctx, &iop.ProfileSearchRequest{MaxResponseRecordCount: 3})
	require.NoError(t, err)
	assert.Equal(t, uint32(7), resp.TotalRecordCount)
	assert.Len(t, resp.Results, 3)
	require.NotEmpty(t, resp.ContinuationToken)

	part, err := e.Part(ctx, &iop.ProfileSearchPartRequest{
		ContinuationToken: resp.ContinuationToken,
		RecordIndex:       3,
		RecordCount:       10,
	})
	require.NoError(t, err)
	assert.Len(t, part.Results, 4)

	// Pages never overlap.
	seen := make(map[string]bool)
	for _, r := range resp.Results {
		seen[r.Profile.Profile.Name] = true
	}
	for _, r := range part.Results {
		assert.False(t, seen[r.Profile.Profile.Name])
	}

	_, err = e.Part(ctx, &iop.ProfileSearchPartRequest{
		ContinuationToken: []byte("bogus-token-0000"),
	})
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestSearchEvilRegexReturnsPartial(t *testing.T) {
	e, st := newTestEngine(t, Config{
		MatchTimeout:  20 * time.Millisecond,
		RequestBudget: 200 * time.Millisecond,
	})
	ctx := context.Background()

	evilInput := strings.Repeat("a", 60)
	for i := 0; i < 10; i++ {
		seedHosted(t, st, evilInput, "person", profile.Location{})
	}

	start := time.Now()
	resp, err := e.Search(ctx, &iop.ProfileSearchRequest{
		ExtraData: `(a+)+$x`,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 1200*time.Millisecond)
	assert.LessOrEqual(t, resp.TotalRecordCount, uint32(10))
}

func TestSearchInvalidRegexRejected(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	_, err := e.Search(context.Background(), &iop.ProfileSearchRequest{
		ExtraData: `([unclosed`,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "extraData", verr.Field)
}

func TestDistanceLaws(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := profile.Location{
			Latitude:  int32(rapid.IntRange(profile.MinLatitude, profile.MaxLatitude).Draw(t, "aLat")),
			Longitude: int32(rapid.IntRange(profile.MinLongitude, profile.MaxLongitude).Draw(t, "aLon")),
		}
		b := profile.Location{
			Latitude:  int32(rapid.IntRange(profile.MinLatitude, profile.MaxLatitude).Draw(t, "bLat")),
			Longitude: int32(rapid.IntRange(profile.MinLongitude, profile.MaxLongitude).Draw(t, "bLon")),
		}

		assert.InDelta(t, Distance(a, b), Distance(b, a), 10)
		assert.Less(t, Distance(a, a), 10.0)
	})
}

func TestDistanceKnownPair(t *testing.T) {
	budapest := profile.Location{Latitude: 47_497_913, Longitude: 19_040_236}
	vienna := profile.Location{Latitude: 48_208_174, Longitude: 16_373_819}

	// Great-circle distance Budapest-Vienna is about 214 km.
	d := Distance(budapest, vienna)
	assert.InDelta(t, 214_000, d, 3_000)
}
