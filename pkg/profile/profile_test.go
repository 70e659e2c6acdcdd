package profile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/iop-labs/profiled/pkg/identity"
)

func validProfile(t *testing.T) (*Info, *identity.KeyPair) {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	return &Info{
		Version:   []byte{1, 0, 0},
		PublicKey: kp.PublicKey,
		Name:      "alice",
		Type:      "person",
		Location:  Location{Latitude: 48137154, Longitude: 11576124},
	}, kp
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Info)
		wantErr string
	}{
		{name: "valid", mutate: func(*Info) {}},
		{name: "zero version", mutate: func(p *Info) { p.Version = []byte{0, 0, 0} }, wantErr: "version"},
		{name: "empty name", mutate: func(p *Info) { p.Name = "" }, wantErr: "name"},
		{name: "name too long", mutate: func(p *Info) { p.Name = strings.Repeat("x", MaxNameLength+1) }, wantErr: "name"},
		{name: "name invalid utf8", mutate: func(p *Info) { p.Name = string([]byte{0xFF, 0xFE}) }, wantErr: "name"},
		{name: "type too long", mutate: func(p *Info) { p.Type = strings.Repeat("t", MaxTypeLength+1) }, wantErr: "type"},
		{name: "extra data too long", mutate: func(p *Info) { p.ExtraData = strings.Repeat("e", MaxExtraDataLength+1) }, wantErr: "extraData"},
		{name: "latitude out of range", mutate: func(p *Info) { p.Location.Latitude = MaxLatitude + 1 }, wantErr: "location"},
		{name: "longitude out of range", mutate: func(p *Info) { p.Location.Longitude = MinLongitude - 1 }, wantErr: "location"},
		{name: "short image hash", mutate: func(p *Info) { p.ProfileImageHash = []byte{1, 2, 3} }, wantErr: "profileImageHash"},
		{name: "short public key", mutate: func(p *Info) { p.PublicKey = p.PublicKey[:16] }, wantErr: "publicKey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := validProfile(t)
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.wantErr, fe.Field)
		})
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kp, err := identity.GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		p := &Info{
			Version:   []byte{1, 0, byte(rapid.IntRange(0, 255).Draw(t, "patch"))},
			PublicKey: kp.PublicKey,
			Name:      rapid.StringN(1, 20, 64).Draw(t, "name"),
			Type:      rapid.StringN(0, 10, 64).Draw(t, "type"),
			ExtraData: rapid.StringN(0, 50, 200).Draw(t, "extra"),
			Location: Location{
				Latitude:  int32(rapid.IntRange(MinLatitude, MaxLatitude).Draw(t, "lat")),
				Longitude: int32(rapid.IntRange(MinLongitude, MaxLongitude).Draw(t, "lon")),
			},
		}

		sig := p.Sign(kp.PrivateKey)
		if !p.VerifySignature(sig) {
			t.Fatalf("signature of valid profile did not verify")
		}

		// Mutating any byte of the canonical encoding breaks the signature.
		canonical := p.CanonicalBytes()
		idx := rapid.IntRange(0, len(canonical)-1).Draw(t, "idx")
		mutated := append([]byte(nil), canonical...)
		mutated[idx] ^= 0xFF
		if identity.VerifyPayload(kp.PublicKey, mutated, sig) {
			t.Fatalf("signature verified over mutated canonical bytes")
		}
	})
}

func TestWireRoundTrip(t *testing.T) {
	p, kp := validProfile(t)
	sig := p.Sign(kp.PrivateKey)

	got, gotSig, err := FromWire(p.ToWire(sig))
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Location, got.Location)
	assert.Equal(t, sig, gotSig)
	assert.True(t, got.VerifySignature(gotSig))
}

func TestLocationDegrees(t *testing.T) {
	l := Location{Latitude: 48137154, Longitude: -11576124}
	assert.InDelta(t, 48.137154, l.LatDegrees(), 1e-9)
	assert.InDelta(t, -11.576124, l.LonDegrees(), 1e-9)
}
