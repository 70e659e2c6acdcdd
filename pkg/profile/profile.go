// Package profile defines the signed profile value shared by hosted and
// neighbor identities, its validation limits, and the location type used by
// the search engine.
//
// A profile is bound to an identity by an Ed25519 signature over the
// canonical protobuf encoding of the profile (see internal/protocol/iop's
// ProfileInformation). Both the hosted-identity manager and the neighborhood
// receiver verify this signature before persisting anything.
package profile

import (
	"crypto/ed25519"
	"fmt"
	"unicode/utf8"

	"github.com/iop-labs/profiled/internal/protocol/iop"
	"github.com/iop-labs/profiled/pkg/identity"
)

// Field limits of the profile surface. Sizes are in bytes of the UTF-8
// encoding, not runes.
const (
	MaxNameLength      = 64
	MaxTypeLength      = 64
	MaxExtraDataLength = 200

	// CoordinateScale converts between wire coordinates and degrees:
	// degrees * 1e6 travel as zigzag-encoded int32.
	CoordinateScale = 1_000_000

	MinLatitude  = -90 * CoordinateScale
	MaxLatitude  = 90 * CoordinateScale
	MinLongitude = -180 * CoordinateScale
	MaxLongitude = 180 * CoordinateScale
)

// Location is a GPS position in 1e6-scaled degrees, the resolution the
// protocol carries (6 fractional digits).
type Location struct {
	Latitude  int32
	Longitude int32
}

// Valid reports whether the location is within [-90,90] / [-180,180] degrees.
func (l Location) Valid() bool {
	return l.Latitude >= MinLatitude && l.Latitude <= MaxLatitude &&
		l.Longitude >= MinLongitude && l.Longitude <= MaxLongitude
}

// LatDegrees returns the latitude in decimal degrees.
func (l Location) LatDegrees() float64 {
	return float64(l.Latitude) / CoordinateScale
}

// LonDegrees returns the longitude in decimal degrees.
func (l Location) LonDegrees() float64 {
	return float64(l.Longitude) / CoordinateScale
}

// Info is the profile value of an identity. Version is a 3-byte semantic
// version; a zero version marks an uninitialized profile.
type Info struct {
	Version            []byte
	PublicKey          ed25519.PublicKey
	Name               string
	Type               string
	ExtraData          string
	Location           Location
	ProfileImageHash   []byte
	ThumbnailImageHash []byte
}

// NetworkID returns the identity identifier the profile belongs to.
func (p *Info) NetworkID() identity.NetworkID {
	return identity.FromPublicKey(p.PublicKey)
}

// CanonicalBytes returns the deterministic encoding profile signatures cover.
func (p *Info) CanonicalBytes() []byte {
	return p.wire().Marshal()
}

// Sign returns the identity's signature over the profile's canonical bytes.
func (p *Info) Sign(priv ed25519.PrivateKey) []byte {
	return identity.SignPayload(priv, p.CanonicalBytes())
}

// VerifySignature reports whether signature binds this profile to its own
// public key.
func (p *Info) VerifySignature(signature []byte) bool {
	return identity.VerifyPayload(p.PublicKey, p.CanonicalBytes(), signature)
}

// Validate checks every field limit of the profile surface. It returns the
// name of the first offending field, which handlers surface as the Details
// string of an ErrorInvalidValue response.
func (p *Info) Validate() error {
	if !iop.ValidVersion(p.Version) {
		return &FieldError{Field: "version"}
	}
	if len(p.PublicKey) != identity.PublicKeySize {
		return &FieldError{Field: "publicKey"}
	}
	if p.Name == "" || len(p.Name) > MaxNameLength || !utf8.ValidString(p.Name) {
		return &FieldError{Field: "name"}
	}
	if len(p.Type) > MaxTypeLength || !utf8.ValidString(p.Type) {
		return &FieldError{Field: "type"}
	}
	if len(p.ExtraData) > MaxExtraDataLength || !utf8.ValidString(p.ExtraData) {
		return &FieldError{Field: "extraData"}
	}
	if !p.Location.Valid() {
		return &FieldError{Field: "location"}
	}
	if err := validImageHash(p.ProfileImageHash); err != nil {
		return &FieldError{Field: "profileImageHash"}
	}
	if err := validImageHash(p.ThumbnailImageHash); err != nil {
		return &FieldError{Field: "thumbnailImageHash"}
	}
	return nil
}

// validImageHash accepts an absent hash or a SHA256-sized one.
func validImageHash(h []byte) error {
	if len(h) != 0 && len(h) != identity.NetworkIDSize {
		return fmt.Errorf("image hash must be %d bytes, got %d", identity.NetworkIDSize, len(h))
	}
	return nil
}

// FieldError names the profile field that failed validation.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid profile field %s", e.Field)
}

// wire converts the profile to its protocol form.
func (p *Info) wire() *iop.ProfileInformation {
	return &iop.ProfileInformation{
		Version:            p.Version,
		PublicKey:          p.PublicKey,
		Name:               p.Name,
		Type:               p.Type,
		Latitude:           p.Location.Latitude,
		Longitude:          p.Location.Longitude,
		ExtraData:          p.ExtraData,
		ProfileImageHash:   p.ProfileImageHash,
		ThumbnailImageHash: p.ThumbnailImageHash,
	}
}

// ToWire converts the profile and its signature to the protocol form.
func (p *Info) ToWire(signature []byte) *iop.SignedProfile {
	return &iop.SignedProfile{Profile: p.wire(), Signature: signature}
}

// FromCanonical decodes a profile from its canonical encoding, the form
// action snapshots carry.
func FromCanonical(data []byte) (*Info, error) {
	var w iop.ProfileInformation
	if err := w.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to decode canonical profile: %w", err)
	}
	info, _, err := FromWire(&iop.SignedProfile{Profile: &w})
	return info, err
}

// FromWire converts a received protocol profile to the domain form.
// The signature is not verified here; callers decide when to verify.
func FromWire(sp *iop.SignedProfile) (*Info, []byte, error) {
	if sp == nil || sp.Profile == nil {
		return nil, nil, fmt.Errorf("signed profile is missing its profile")
	}
	w := sp.Profile
	info := &Info{
		Version:            w.Version,
		PublicKey:          ed25519.PublicKey(w.PublicKey),
		Name:               w.Name,
		Type:               w.Type,
		ExtraData:          w.ExtraData,
		Location:           Location{Latitude: w.Latitude, Longitude: w.Longitude},
		ProfileImageHash:   w.ProfileImageHash,
		ThumbnailImageHash: w.ThumbnailImageHash,
	}
	return info, sp.Signature, nil
}
