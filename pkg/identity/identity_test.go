package identity

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNetworkID(t *testing.T) {
	t.Run("DerivedFromPublicKey", func(t *testing.T) {
		kp, err := GenerateKeyPair()
		require.NoError(t, err)

		id := kp.NetworkID()
		expected := sha256.Sum256(kp.PublicKey)
		assert.Equal(t, expected[:], id.Bytes())
		assert.Len(t, id.Bytes(), NetworkIDSize)
	})

	t.Run("HexRoundTrip", func(t *testing.T) {
		kp, err := GenerateKeyPair()
		require.NoError(t, err)

		id := kp.NetworkID()
		parsed, err := ParseNetworkID(id.Hex())
		require.NoError(t, err)
		assert.True(t, id.Equal(parsed))
	})

	t.Run("RejectsWrongLength", func(t *testing.T) {
		_, err := NetworkIDFromBytes([]byte{0x01, 0x02})
		assert.Error(t, err)
	})

	t.Run("RejectsInvalidHex", func(t *testing.T) {
		_, err := ParseNetworkID("not-hex")
		assert.Error(t, err)
	})

	t.Run("ZeroDetection", func(t *testing.T) {
		var zero NetworkID
		assert.True(t, zero.IsZero())

		kp, err := GenerateKeyPair()
		require.NoError(t, err)
		assert.False(t, kp.NetworkID().IsZero())
	})
}

func TestKeyPair(t *testing.T) {
	t.Run("RebuildFromPrivateKey", func(t *testing.T) {
		kp, err := GenerateKeyPair()
		require.NoError(t, err)

		rebuilt, err := KeyPairFromPrivateKey(kp.PrivateKey)
		require.NoError(t, err)
		assert.Equal(t, kp.PublicKey, rebuilt.PublicKey)
		assert.Equal(t, kp.NetworkID(), rebuilt.NetworkID())
	})

	t.Run("RejectsShortPrivateKey", func(t *testing.T) {
		_, err := KeyPairFromPrivateKey([]byte{0x01})
		assert.Error(t, err)
	})

	t.Run("DistinctKeysDistinctIDs", func(t *testing.T) {
		a, err := GenerateKeyPair()
		require.NoError(t, err)
		b, err := GenerateKeyPair()
		require.NoError(t, err)
		assert.NotEqual(t, a.NetworkID(), b.NetworkID())
	})
}

func TestSignVerify(t *testing.T) {
	t.Run("PayloadSignatureVerifies", func(t *testing.T) {
		kp, err := GenerateKeyPair()
		require.NoError(t, err)

		payload := []byte("signed profile body")
		sig := kp.Sign(payload)
		assert.Len(t, sig, SignatureSize)
		assert.True(t, VerifyPayload(kp.PublicKey, payload, sig))
	})

	t.Run("WrongKeyFails", func(t *testing.T) {
		a, err := GenerateKeyPair()
		require.NoError(t, err)
		b, err := GenerateKeyPair()
		require.NoError(t, err)

		payload := []byte("signed profile body")
		sig := a.Sign(payload)
		assert.False(t, VerifyPayload(b.PublicKey, payload, sig))
	})

	t.Run("MalformedInputsDoNotPanic", func(t *testing.T) {
		kp, err := GenerateKeyPair()
		require.NoError(t, err)

		assert.False(t, VerifyPayload(nil, []byte("x"), make([]byte, SignatureSize)))
		assert.False(t, VerifyPayload(kp.PublicKey, []byte("x"), []byte("short")))
		assert.False(t, VerifyRaw(kp.PublicKey[:4], []byte("x"), make([]byte, SignatureSize)))
	})

	t.Run("RawSignatureForChallenges", func(t *testing.T) {
		kp, err := GenerateKeyPair()
		require.NoError(t, err)

		challenge := make([]byte, 32)
		sig := SignRaw(kp.PrivateKey, challenge)
		assert.True(t, VerifyRaw(kp.PublicKey, challenge, sig))

		// Raw and digest signatures are intentionally not interchangeable.
		assert.False(t, VerifyPayload(kp.PublicKey, challenge, sig))
	})
}

// Any byte flipped in either the payload or the signature must break
// verification, for arbitrary payloads.
func TestSignatureTamperingProperty(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 1, 512).Draw(t, "payload")
		sig := kp.Sign(payload)

		if !VerifyPayload(kp.PublicKey, payload, sig) {
			t.Fatalf("fresh signature did not verify")
		}

		flipPayload := rapid.Bool().Draw(t, "flipPayload")
		if flipPayload {
			idx := rapid.IntRange(0, len(payload)-1).Draw(t, "payloadIdx")
			mutated := append([]byte(nil), payload...)
			mutated[idx] ^= 0xFF
			if VerifyPayload(kp.PublicKey, mutated, sig) {
				t.Fatalf("tampered payload still verified")
			}
		} else {
			idx := rapid.IntRange(0, len(sig)-1).Draw(t, "sigIdx")
			mutated := append([]byte(nil), sig...)
			mutated[idx] ^= 0xFF
			if VerifyPayload(kp.PublicKey, payload, mutated) {
				t.Fatalf("tampered signature still verified")
			}
		}
	})
}

func TestCodecs(t *testing.T) {
	samples := [][]byte{
		{},
		{0x00},
		{0xDE, 0xAD, 0xBE, 0xEF},
		make([]byte, 32),
	}

	t.Run("HexRoundTrip", func(t *testing.T) {
		for _, sample := range samples {
			decoded, err := DecodeHex(EncodeHex(sample))
			require.NoError(t, err)
			assert.Equal(t, sample, decoded)
		}
	})

	t.Run("Base58RoundTrip", func(t *testing.T) {
		for _, sample := range samples {
			decoded, err := DecodeBase58(EncodeBase58(sample))
			require.NoError(t, err)
			if len(sample) == 0 {
				assert.Empty(t, decoded)
			} else {
				assert.Equal(t, sample, decoded)
			}
		}
	})

	t.Run("Base64URLRoundTrip", func(t *testing.T) {
		for _, sample := range samples {
			decoded, err := DecodeBase64URL(EncodeBase64URL(sample))
			require.NoError(t, err)
			if len(sample) == 0 {
				assert.Empty(t, decoded)
			} else {
				assert.Equal(t, sample, decoded)
			}
		}
	})

	t.Run("DecodeRejectsGarbage", func(t *testing.T) {
		_, err := DecodeHex("zz")
		assert.Error(t, err)
		_, err = DecodeBase58("0OIl")
		assert.Error(t, err)
		_, err = DecodeBase64URL("!!!!")
		assert.Error(t, err)
	})
}
