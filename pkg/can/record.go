// Package can publishes the server's contact record to the
// content-addressable network. The record (public key, primary endpoint,
// GPS position) is serialized canonically, addressed by a CIDv1 over its
// bytes and republished on a short interval with a monotonic IPNS sequence,
// so peers resolving the server's name always converge on the latest
// address.
package can

import (
	"crypto/ed25519"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/iop-labs/profiled/internal/protocol/wire"
)

// ContactRecord is the publicly resolvable contact card of one profile
// server.
type ContactRecord struct {
	Version     []byte            // field 1, protocol version
	PublicKey   ed25519.PublicKey // field 2
	IPAddress   string            // field 3
	PrimaryPort uint32            // field 4
	Latitude    int32             // field 5, degrees * 1e6
	Longitude   int32             // field 6, degrees * 1e6
}

// Marshal returns the canonical encoding: ascending field numbers with
// canonical varints, the same discipline the wire protocol uses. The CID is
// computed over these bytes, so the encoding is part of the record's
// identity.
func (r *ContactRecord) Marshal() []byte {
	buf := wire.AppendBytes(nil, 1, r.Version)
	buf = wire.AppendBytes(buf, 2, r.PublicKey)
	buf = wire.AppendString(buf, 3, r.IPAddress)
	buf = wire.AppendUint32(buf, 4, r.PrimaryPort)
	buf = wire.AppendSint32(buf, 5, r.Latitude)
	buf = wire.AppendSint32(buf, 6, r.Longitude)
	return buf
}

// Unmarshal decodes a canonical contact record.
func (r *ContactRecord) Unmarshal(data []byte) error {
	d := wire.NewDecoder(data)
	for d.More() {
		num, typ, err := d.Tag()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			r.Version, err = d.Bytes()
		case 2:
			var raw []byte
			raw, err = d.Bytes()
			r.PublicKey = ed25519.PublicKey(raw)
		case 3:
			r.IPAddress, err = d.String()
		case 4:
			r.PrimaryPort, err = d.Uint32()
		case 5:
			r.Latitude, err = d.Sint32()
		case 6:
			r.Longitude, err = d.Sint32()
		default:
			err = d.Skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// CID returns the record's content identifier: CIDv1, raw codec, SHA256.
func (r *ContactRecord) CID() (cid.Cid, error) {
	mh, err := multihash.Sum(r.Marshal(), multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to hash contact record: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}
