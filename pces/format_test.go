package pces

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/virtualvote/consensus/events"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		FormatVersion: formatVersion,
		FirstSeqNum:   42,
		MinAncientID:  7,
		AncientMode:   events.BirthRoundMode,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, h))

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestReadHeaderBadMagic(t *testing.T) {
	raw := append([]byte("XXXX"), make([]byte, 21)...)
	_, err := ReadHeader(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestFooterRoundTrip(t *testing.T) {
	f := Footer{RecordCount: 100, MaxAncientID: 55}

	var buf bytes.Buffer
	require.NoError(t, WriteFooter(&buf, f))

	got, err := ReadFooter(&buf)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestFooterBadCRC(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFooter(&buf, Footer{RecordCount: 1, MaxAncientID: 2}))

	corrupt := buf.Bytes()
	corrupt[0] ^= 0xFF

	_, err := ReadFooter(bytes.NewReader(corrupt))
	require.Error(t, err)
}

func TestRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, 7, []byte("event-payload")))
	require.NoError(t, WriteRecord(&buf, 8, []byte("second-payload")))

	r := bufio.NewReader(&buf)

	seq, data, err := ReadRecord(r)
	require.NoError(t, err)
	require.Equal(t, uint64(7), seq)
	require.Equal(t, []byte("event-payload"), data)

	seq, data, err = ReadRecord(r)
	require.NoError(t, err)
	require.Equal(t, uint64(8), seq)
	require.Equal(t, []byte("second-payload"), data)

	_, _, err = ReadRecord(r)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadRecordTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, 1, []byte("full record")))

	truncated := buf.Bytes()[:buf.Len()-2]
	r := bufio.NewReader(bytes.NewReader(truncated))

	_, _, err := ReadRecord(r)
	require.ErrorIs(t, err, ErrTruncatedRecord)
}

func TestReadRecordCorruptCRC(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, 1, []byte("full record")))

	corrupt := buf.Bytes()
	corrupt[len(corrupt)-1] ^= 0xFF
	r := bufio.NewReader(bytes.NewReader(corrupt))

	_, _, err := ReadRecord(r)
	require.ErrorIs(t, err, ErrTruncatedRecord)
}
