// Package storage - record encoding for BadgerDB.
package storage

import (
	"bytes"
	"fmt"
	"time"

	"github.com/klauspost/compress/s2"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/graphcore/pkg/value"
)

const recordVersion = 1

// Codec converts entities to and from their stored form.
//
// Stored form: blake2b-256(body) || body, where body is a msgpack record whose
// property map is itself msgpack encoded and, when Compress is set, s2
// compressed. The compression flag is kept per record, so a store written with
// compression on can be reopened with it off and vice versa.
type Codec struct {
	Compress bool
}

type nodeRecord struct {
	Version    uint8  `msgpack:"v"`
	ID         string `msgpack:"id"`
	Label      string `msgpack:"l"`
	Compressed bool   `msgpack:"c"`
	Props      []byte `msgpack:"p"`
	CreatedAt  int64  `msgpack:"ct"`
	UpdatedAt  int64  `msgpack:"ut"`
}

type edgeRecord struct {
	Version    uint8  `msgpack:"v"`
	ID         string `msgpack:"id"`
	Source     string `msgpack:"s"`
	Target     string `msgpack:"t"`
	Label      string `msgpack:"l"`
	Compressed bool   `msgpack:"c"`
	Props      []byte `msgpack:"p"`
	CreatedAt  int64  `msgpack:"ct"`
	UpdatedAt  int64  `msgpack:"ut"`
}

// EncodeNode serializes a node.
func (c Codec) EncodeNode(n *Node) ([]byte, error) {
	props, err := c.encodeProps(n.Properties)
	if err != nil {
		return nil, fmt.Errorf("encoding node %s properties: %w", n.ID, err)
	}
	body, err := msgpack.Marshal(&nodeRecord{
		Version:    recordVersion,
		ID:         string(n.ID),
		Label:      n.Label,
		Compressed: c.Compress,
		Props:      props,
		CreatedAt:  timeToNanos(n.CreatedAt),
		UpdatedAt:  timeToNanos(n.UpdatedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding node %s: %w", n.ID, err)
	}
	return seal(body), nil
}

// DecodeNode deserializes a node, verifying its checksum.
func (c Codec) DecodeNode(data []byte) (*Node, error) {
	body, err := unseal(data)
	if err != nil {
		return nil, err
	}
	var rec nodeRecord
	if err := msgpack.Unmarshal(body, &rec); err != nil {
		return nil, NewIntegrityError("record", "", "undecodable node record: %v", err)
	}
	props, err := decodeProps(rec.Props, rec.Compressed)
	if err != nil {
		return nil, NewIntegrityError("record", rec.ID, "undecodable node properties: %v", err)
	}
	return &Node{
		ID:         NodeID(rec.ID),
		Label:      rec.Label,
		Properties: props,
		CreatedAt:  nanosToTime(rec.CreatedAt),
		UpdatedAt:  nanosToTime(rec.UpdatedAt),
	}, nil
}

// EncodeEdge serializes an edge.
func (c Codec) EncodeEdge(e *Edge) ([]byte, error) {
	props, err := c.encodeProps(e.Properties)
	if err != nil {
		return nil, fmt.Errorf("encoding edge %s properties: %w", e.ID, err)
	}
	body, err := msgpack.Marshal(&edgeRecord{
		Version:    recordVersion,
		ID:         string(e.ID),
		Source:     string(e.Source),
		Target:     string(e.Target),
		Label:      e.Label,
		Compressed: c.Compress,
		Props:      props,
		CreatedAt:  timeToNanos(e.CreatedAt),
		UpdatedAt:  timeToNanos(e.UpdatedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding edge %s: %w", e.ID, err)
	}
	return seal(body), nil
}

// DecodeEdge deserializes an edge, verifying its checksum.
func (c Codec) DecodeEdge(data []byte) (*Edge, error) {
	body, err := unseal(data)
	if err != nil {
		return nil, err
	}
	var rec edgeRecord
	if err := msgpack.Unmarshal(body, &rec); err != nil {
		return nil, NewIntegrityError("record", "", "undecodable edge record: %v", err)
	}
	props, err := decodeProps(rec.Props, rec.Compressed)
	if err != nil {
		return nil, NewIntegrityError("record", rec.ID, "undecodable edge properties: %v", err)
	}
	return &Edge{
		ID:         EdgeID(rec.ID),
		Source:     NodeID(rec.Source),
		Target:     NodeID(rec.Target),
		Label:      rec.Label,
		Properties: props,
		CreatedAt:  nanosToTime(rec.CreatedAt),
		UpdatedAt:  nanosToTime(rec.UpdatedAt),
	}, nil
}

func (c Codec) encodeProps(props value.Properties) ([]byte, error) {
	if props == nil {
		props = value.Properties{}
	}
	raw, err := msgpack.Marshal(props)
	if err != nil {
		return nil, err
	}
	if c.Compress {
		return s2.Encode(nil, raw), nil
	}
	return raw, nil
}

func decodeProps(data []byte, compressed bool) (value.Properties, error) {
	if compressed {
		raw, err := s2.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("s2: %w", err)
		}
		data = raw
	}
	props := value.Properties{}
	if err := msgpack.Unmarshal(data, &props); err != nil {
		return nil, err
	}
	return props, nil
}

func seal(body []byte) []byte {
	sum := blake2b.Sum256(body)
	out := make([]byte, 0, len(sum)+len(body))
	out = append(out, sum[:]...)
	return append(out, body...)
}

func unseal(data []byte) ([]byte, error) {
	if len(data) < blake2b.Size256 {
		return nil, NewIntegrityError("record", "", "record shorter than checksum (%d bytes)", len(data))
	}
	body := data[blake2b.Size256:]
	sum := blake2b.Sum256(body)
	if !bytes.Equal(sum[:], data[:blake2b.Size256]) {
		return nil, NewIntegrityError("record", "", "checksum mismatch")
	}
	return body, nil
}

func timeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nanosToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
