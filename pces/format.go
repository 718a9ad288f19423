// Package pces implements the Pre-Consensus Event Stream: the durable,
// append-only segment log that records every admitted event before it can
// influence application state (spec.md §4.7, §4.10, §4.11, §6).
package pces

import (
	"bufio"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"

	"github.com/virtualvote/consensus/events"
)

// segmentMagic identifies a PCES segment file.
var segmentMagic = [4]byte{'P', 'C', 'E', 'S'}

const formatVersion uint32 = 1

// ErrBadMagic is returned when a segment file does not start with the PCES
// magic bytes.
var ErrBadMagic = errors.New("pces: bad segment magic")

// Header is the fixed-size prefix of every segment file (spec.md §6).
type Header struct {
	FormatVersion uint32
	FirstSeqNum   uint64
	MinAncientID  uint64
	AncientMode   events.AncientMode
}

// WriteHeader writes h to w in the wire format spec.md §6 defines.
func WriteHeader(w io.Writer, h Header) error {
	buf := make([]byte, 4+4+8+8+1)
	copy(buf[0:4], segmentMagic[:])
	binary.BigEndian.PutUint32(buf[4:8], h.FormatVersion)
	binary.BigEndian.PutUint64(buf[8:16], h.FirstSeqNum)
	binary.BigEndian.PutUint64(buf[16:24], h.MinAncientID)
	buf[24] = byte(h.AncientMode)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and validates a segment header from r.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, 4+4+8+8+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}
	if [4]byte(buf[0:4]) != segmentMagic {
		return Header{}, ErrBadMagic
	}
	return Header{
		FormatVersion: binary.BigEndian.Uint32(buf[4:8]),
		FirstSeqNum:   binary.BigEndian.Uint64(buf[8:16]),
		MinAncientID:  binary.BigEndian.Uint64(buf[16:24]),
		AncientMode:   events.AncientMode(buf[24]),
	}, nil
}

// Footer closes a cleanly-shut segment file (spec.md §6). A missing footer
// indicates the writer crashed before closing this segment.
type Footer struct {
	RecordCount uint64
	MaxAncientID uint64
}

// WriteFooter appends a footer record, CRC-covering its own fields.
func WriteFooter(w io.Writer, f Footer) error {
	buf := make([]byte, 8+8)
	binary.BigEndian.PutUint64(buf[0:8], f.RecordCount)
	binary.BigEndian.PutUint64(buf[8:16], f.MaxAncientID)
	crc := crc32.ChecksumIEEE(buf)
	out := make([]byte, len(buf)+4)
	copy(out, buf)
	binary.BigEndian.PutUint32(out[len(buf):], crc)
	_, err := w.Write(out)
	return err
}

// ReadFooter reads a footer, validating its CRC.
func ReadFooter(r io.Reader) (Footer, error) {
	buf := make([]byte, 8+8+4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Footer{}, err
	}
	body := buf[:16]
	wantCRC := binary.BigEndian.Uint32(buf[16:20])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return Footer{}, errors.New("pces: footer CRC mismatch")
	}
	return Footer{
		RecordCount:  binary.BigEndian.Uint64(body[0:8]),
		MaxAncientID: binary.BigEndian.Uint64(body[8:16]),
	}, nil
}

// WriteRecord appends one event record: len(u32) | event-bytes | seqNum(u64)
// | crc32(u32), CRC covering the length-prefixed event bytes and sequence
// number (spec.md §6).
func WriteRecord(w io.Writer, seqNum uint64, eventBytes []byte) error {
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(eventBytes)))

	seqBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBuf, seqNum)

	crc := crc32.NewIEEE()
	crc.Write(lenBuf)
	crc.Write(eventBytes)
	crc.Write(seqBuf)

	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	if _, err := w.Write(eventBytes); err != nil {
		return err
	}
	if _, err := w.Write(seqBuf); err != nil {
		return err
	}
	crcBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBuf, crc.Sum32())
	_, err := w.Write(crcBuf)
	return err
}

// ReadRecord reads one event record from r. It returns io.EOF cleanly at a
// well-formed end of stream, and ErrTruncatedRecord if a record is cut off
// or its CRC fails to verify — the signal that this segment's footer is
// missing because the writer crashed mid-record (spec.md §6).
var ErrTruncatedRecord = errors.New("pces: truncated or corrupt record")

func ReadRecord(r *bufio.Reader) (seqNum uint64, eventBytes []byte, err error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, ErrTruncatedRecord
	}
	n := binary.BigEndian.Uint32(lenBuf)

	eventBytes = make([]byte, n)
	if _, err := io.ReadFull(r, eventBytes); err != nil {
		return 0, nil, ErrTruncatedRecord
	}

	seqBuf := make([]byte, 8)
	if _, err := io.ReadFull(r, seqBuf); err != nil {
		return 0, nil, ErrTruncatedRecord
	}
	seqNum = binary.BigEndian.Uint64(seqBuf)

	crcBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, crcBuf); err != nil {
		return 0, nil, ErrTruncatedRecord
	}
	wantCRC := binary.BigEndian.Uint32(crcBuf)

	crc := crc32.NewIEEE()
	crc.Write(lenBuf)
	crc.Write(eventBytes)
	crc.Write(seqBuf)
	if crc.Sum32() != wantCRC {
		return 0, nil, ErrTruncatedRecord
	}

	return seqNum, eventBytes, nil
}
