package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestScalarRoundTrip(t *testing.T) {
	buf := AppendUint32(nil, 1, 42)
	buf = AppendSint32(buf, 2, -7)
	buf = AppendBool(buf, 3, true)
	buf = AppendString(buf, 4, "hello")
	buf = AppendBytes(buf, 5, []byte{0xDE, 0xAD})
	buf = AppendUvarint(buf, 6, 1<<40)

	d := NewDecoder(buf)
	read := map[protowire.Number]any{}
	for d.More() {
		num, _, err := d.Tag()
		require.NoError(t, err)
		switch num {
		case 1:
			v, err := d.Uint32()
			require.NoError(t, err)
			read[num] = v
		case 2:
			v, err := d.Sint32()
			require.NoError(t, err)
			read[num] = v
		case 3:
			v, err := d.Bool()
			require.NoError(t, err)
			read[num] = v
		case 4:
			v, err := d.String()
			require.NoError(t, err)
			read[num] = v
		case 5:
			v, err := d.Bytes()
			require.NoError(t, err)
			read[num] = v
		case 6:
			v, err := d.Uvarint()
			require.NoError(t, err)
			read[num] = v
		}
	}
	assert.Equal(t, uint32(42), read[1])
	assert.Equal(t, int32(-7), read[2])
	assert.Equal(t, true, read[3])
	assert.Equal(t, "hello", read[4])
	assert.Equal(t, []byte{0xDE, 0xAD}, read[5])
	assert.Equal(t, uint64(1<<40), read[6])
}

func TestZeroScalarsOmitted(t *testing.T) {
	var buf []byte
	buf = AppendUint32(buf, 1, 0)
	buf = AppendSint32(buf, 2, 0)
	buf = AppendBool(buf, 3, false)
	buf = AppendString(buf, 4, "")
	buf = AppendBytes(buf, 5, nil)
	assert.Empty(t, buf)

	// An empty sub-message still gets a tag: presence is the signal.
	buf = AppendMessage(buf, 6, nil)
	assert.NotEmpty(t, buf)
}

func TestSkipUnknownField(t *testing.T) {
	buf := AppendString(nil, 9, "from-the-future")
	buf = AppendUint32(buf, 1, 7)

	d := NewDecoder(buf)
	var got uint32
	for d.More() {
		num, typ, err := d.Tag()
		require.NoError(t, err)
		if num == 1 {
			got, err = d.Uint32()
			require.NoError(t, err)
			continue
		}
		require.NoError(t, d.Skip(num, typ))
	}
	assert.Equal(t, uint32(7), got)
}

func TestTruncatedInputFails(t *testing.T) {
	buf := AppendBytes(nil, 1, []byte("payload"))
	d := NewDecoder(buf[:len(buf)-3])
	_, _, err := d.Tag()
	require.NoError(t, err)
	_, err = d.Bytes()
	assert.Error(t, err)
}

func TestBytesReturnsCopy(t *testing.T) {
	src := AppendBytes(nil, 1, []byte{1, 2, 3})
	d := NewDecoder(src)
	_, _, err := d.Tag()
	require.NoError(t, err)
	got, err := d.Bytes()
	require.NoError(t, err)

	src[len(src)-1] = 0xFF
	assert.Equal(t, []byte{1, 2, 3}, got)
}
