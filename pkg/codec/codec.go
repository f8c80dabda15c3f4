// Package codec implements the versioned, tagged binary snapshot format:
// a 64-byte cleartext header followed by a body of tagged sections
// (nodes, edges, term index, doc lengths), with an optional AES-256-GCM
// envelope wrapping the body for encryption at rest. Unknown section
// tags are always skipped by length, which is the format's
// forward-compatibility contract.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/orneryd/agentmem/pkg/graph"
)

func float32bits(v float32) uint32     { return math.Float32bits(v) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }

const (
	magic          = "AMEM"
	formatVersion1 = 1
	headerSize     = 64
)

// Section tags.
const (
	tagNodes       = 0x01
	tagEdges       = 0x02
	tagTypeIndex   = 0x03 // reserved; never emitted, see Save doc
	tagSessionIndex = 0x04 // reserved; never emitted
	tagTermIndex   = 0x05
	tagDocLengths  = 0x06
)

// Header flag bits.
const (
	flagHasTermIndex  = 1 << 0
	flagHasDocLengths = 1 << 1
	flagHasEncryption = 1 << 2 // ambient addition: body is an AES-GCM envelope
)

// Sentinel format errors. Callers should inspect with errors.Is.
var (
	ErrUnexpectedMagic    = errors.New("codec: unexpected magic bytes")
	ErrUnsupportedVersion = errors.New("codec: unsupported format version")
	ErrTruncatedSection   = errors.New("codec: truncated section")
	ErrChecksumMismatch   = errors.New("codec: checksum mismatch") // surfaced on GCM authentication failure
)

// SaveOptions configures what a Save call emits.
type SaveOptions struct {
	IncludeTermIndex  bool
	IncludeDocLengths bool
	CreatedAt         uint64 // microseconds since epoch

	// Passphrase, if non-empty, wraps the body in an AES-256-GCM
	// envelope derived via PBKDF2. Empty means the body is written in
	// the clear.
	Passphrase string
}

// LoadOptions configures how Load interprets an encrypted snapshot.
type LoadOptions struct {
	Passphrase string
}

// Save writes g to w per SaveOptions. TypeIndex and SessionIndex are
// never emitted as sections: both are fully derivable from each node's
// event_type and session_id, which are already present in the node
// payload, so re-deriving them on Load is both exact and cheaper than a
// round trip through the wire format — tags 0x03/0x04 remain reserved
// for a future section a reader must still know to skip.
func Save(g *graph.Graph, w io.Writer, opts SaveOptions) error {
	body, err := encodeBody(g, opts)
	if err != nil {
		return err
	}

	flags := uint32(0)
	if opts.IncludeTermIndex {
		flags |= flagHasTermIndex
	}
	if opts.IncludeDocLengths {
		flags |= flagHasDocLengths
	}

	if opts.Passphrase != "" {
		envelope, err := seal(body, opts.Passphrase)
		if err != nil {
			return fmt.Errorf("codec save: %w", err)
		}
		body = envelope
		flags |= flagHasEncryption
	}

	header := encodeHeader(g, opts.CreatedAt, flags)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("codec save: writing header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("codec save: writing body: %w", err)
	}
	return nil
}

func encodeHeader(g *graph.Graph, createdAt uint64, flags uint32) []byte {
	h := make([]byte, headerSize)
	copy(h[0:4], magic)
	binary.LittleEndian.PutUint32(h[4:8], formatVersion1)
	binary.LittleEndian.PutUint32(h[8:12], uint32(g.Dimension()))
	binary.LittleEndian.PutUint64(h[12:20], uint64(g.NodeCount()))
	binary.LittleEndian.PutUint64(h[20:28], uint64(g.EdgeCount()))
	binary.LittleEndian.PutUint64(h[28:36], createdAt)
	binary.LittleEndian.PutUint32(h[36:40], flags)
	// h[40:64] stays zero padding.
	return h
}

func encodeBody(g *graph.Graph, opts SaveOptions) ([]byte, error) {
	var buf bytes.Buffer

	writeSection(&buf, tagNodes, encodeNodes(g.Nodes()))
	writeSection(&buf, tagEdges, encodeEdges(g.Edges()))

	if opts.IncludeTermIndex {
		writeSection(&buf, tagTermIndex, encodeTermIndex(g.TermIndex()))
	}
	if opts.IncludeDocLengths {
		writeSection(&buf, tagDocLengths, encodeDocLengths(g.DocLengths()))
	}

	return buf.Bytes(), nil
}

func writeSection(buf *bytes.Buffer, tag byte, payload []byte) {
	buf.WriteByte(tag)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)
}

func encodeNodes(nodes []*graph.CognitiveEvent) []byte {
	var buf bytes.Buffer
	for _, n := range nodes {
		buf.Write(encodeNodeRecord(n))
	}
	return buf.Bytes()
}

// encodeNodeRecord lays out one node exactly per the format: id u64,
// event_type u8, session_id u32, created_at u64, confidence f32,
// access_count u32, decay_score f32, content_len u32, feature_vec_len
// u32, then content bytes, then feature_vec f32 values.
func encodeNodeRecord(n *graph.CognitiveEvent) []byte {
	contentBytes := []byte(n.Content)
	header := make([]byte, 8+1+4+8+4+4+4+4+4)
	off := 0
	binary.LittleEndian.PutUint64(header[off:], n.ID)
	off += 8
	header[off] = byte(n.EventType)
	off++
	binary.LittleEndian.PutUint32(header[off:], n.SessionID)
	off += 4
	binary.LittleEndian.PutUint64(header[off:], n.CreatedAt)
	off += 8
	binary.LittleEndian.PutUint32(header[off:], float32bits(n.Confidence))
	off += 4
	binary.LittleEndian.PutUint32(header[off:], n.AccessCount)
	off += 4
	binary.LittleEndian.PutUint32(header[off:], float32bits(n.DecayScore))
	off += 4
	binary.LittleEndian.PutUint32(header[off:], uint32(len(contentBytes)))
	off += 4
	binary.LittleEndian.PutUint32(header[off:], uint32(len(n.FeatureVec)))

	out := make([]byte, 0, len(header)+len(contentBytes)+4*len(n.FeatureVec))
	out = append(out, header...)
	out = append(out, contentBytes...)
	for _, v := range n.FeatureVec {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], float32bits(v))
		out = append(out, b[:]...)
	}
	return out
}

func encodeEdges(edges []graph.Edge) []byte {
	out := make([]byte, 0, len(edges)*(8+8+1+4+8))
	for _, e := range edges {
		var rec [29]byte
		binary.LittleEndian.PutUint64(rec[0:8], e.SourceID)
		binary.LittleEndian.PutUint64(rec[8:16], e.TargetID)
		rec[16] = byte(e.EdgeType)
		binary.LittleEndian.PutUint32(rec[17:21], float32bits(e.Weight))
		binary.LittleEndian.PutUint64(rec[21:29], e.CreatedAt)
		out = append(out, rec[:]...)
	}
	return out
}

func encodeTermIndex(idx *graph.TermIndex) []byte {
	var buf bytes.Buffer
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], idx.DocCount())
	buf.Write(u64[:])

	var f32 [4]byte
	binary.LittleEndian.PutUint32(f32[:], float32bits(idx.AvgDocLength()))
	buf.Write(f32[:])

	terms := idx.Terms()
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(terms)))
	buf.Write(u32[:])

	for _, term := range terms {
		termBytes := []byte(term)
		var u16 [2]byte
		binary.LittleEndian.PutUint16(u16[:], uint16(len(termBytes)))
		buf.Write(u16[:])
		buf.Write(termBytes)

		postings := idx.Get(term)
		binary.LittleEndian.PutUint32(u32[:], uint32(len(postings)))
		buf.Write(u32[:])
		for _, p := range postings {
			var postRec [12]byte
			binary.LittleEndian.PutUint64(postRec[0:8], p.NodeID)
			binary.LittleEndian.PutUint32(postRec[8:12], p.TF)
			buf.Write(postRec[:])
		}
	}
	return buf.Bytes()
}

func encodeDocLengths(dl *graph.DocLengths) []byte {
	raw := dl.Raw()
	var buf bytes.Buffer
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(len(raw)))
	buf.Write(u64[:])
	for _, l := range raw {
		var u32 [4]byte
		binary.LittleEndian.PutUint32(u32[:], l)
		buf.Write(u32[:])
	}
	return buf.Bytes()
}

// Load reads a snapshot from r and reconstructs a Graph. Format errors
// abort the load; a partial graph is never returned.
func Load(r io.Reader, opts LoadOptions) (*graph.Graph, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("codec load: reading header: %w", err)
	}
	if string(header[0:4]) != magic {
		return nil, ErrUnexpectedMagic
	}
	version := binary.LittleEndian.Uint32(header[4:8])
	if version != formatVersion1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	dimension := int(binary.LittleEndian.Uint32(header[8:12]))
	flags := binary.LittleEndian.Uint32(header[36:40])

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codec load: reading body: %w", err)
	}

	body := rest
	if flags&flagHasEncryption != 0 {
		if opts.Passphrase == "" {
			return nil, fmt.Errorf("codec load: snapshot is encrypted, no passphrase supplied")
		}
		body, err = open(rest, opts.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("codec load: %w", err)
		}
	}

	g, err := graph.New(dimension)
	if err != nil {
		return nil, fmt.Errorf("codec load: %w", err)
	}

	var pendingTermIndex *graph.TermIndex
	var pendingDocLengths *graph.DocLengths

	cursor := 0
	for cursor < len(body) {
		if cursor+9 > len(body) {
			return nil, ErrTruncatedSection
		}
		tag := body[cursor]
		length := binary.LittleEndian.Uint64(body[cursor+1 : cursor+9])
		cursor += 9
		if uint64(cursor)+length > uint64(len(body)) {
			return nil, ErrTruncatedSection
		}
		payload := body[cursor : cursor+int(length)]
		cursor += int(length)

		switch tag {
		case tagNodes:
			if err := decodeNodes(g, payload); err != nil {
				return nil, fmt.Errorf("codec load: nodes section: %w", err)
			}
		case tagEdges:
			if err := decodeEdges(g, payload); err != nil {
				return nil, fmt.Errorf("codec load: edges section: %w", err)
			}
		case tagTermIndex:
			idx, err := decodeTermIndex(payload)
			if err != nil {
				return nil, fmt.Errorf("codec load: term index section: %w", err)
			}
			pendingTermIndex = idx
		case tagDocLengths:
			dl, err := decodeDocLengths(payload)
			if err != nil {
				return nil, fmt.Errorf("codec load: doc lengths section: %w", err)
			}
			pendingDocLengths = dl
		default:
			// Unknown tag: already skipped via length above. This is the
			// format's forward-compatibility contract.
		}
	}

	// Apply a precisely-restored term index / doc-length table over the
	// one AddNode built incrementally from content above, when the
	// writer emitted one. Without this, the flags would have no
	// observable effect, since the Go Graph always keeps both indexes
	// coherent by construction.
	if pendingTermIndex != nil {
		g.SetTermIndex(pendingTermIndex)
	}
	if pendingDocLengths != nil {
		g.SetDocLengths(pendingDocLengths)
	}

	return g, nil
}

func decodeNodes(g *graph.Graph, payload []byte) error {
	off := 0
	for off < len(payload) {
		if off+41 > len(payload) {
			return ErrTruncatedSection
		}
		id := binary.LittleEndian.Uint64(payload[off:])
		eventType := graph.EventType(payload[off+8])
		sessionID := binary.LittleEndian.Uint32(payload[off+9:])
		createdAt := binary.LittleEndian.Uint64(payload[off+13:])
		confidence := float32frombits(binary.LittleEndian.Uint32(payload[off+21:]))
		accessCount := binary.LittleEndian.Uint32(payload[off+25:])
		decayScore := float32frombits(binary.LittleEndian.Uint32(payload[off+29:]))
		contentLen := binary.LittleEndian.Uint32(payload[off+33:])
		featureVecLen := binary.LittleEndian.Uint32(payload[off+37:])
		off += 41

		if off+int(contentLen)+4*int(featureVecLen) > len(payload) {
			return ErrTruncatedSection
		}
		content := string(payload[off : off+int(contentLen)])
		off += int(contentLen)

		vec := make([]float32, featureVecLen)
		for i := range vec {
			vec[i] = float32frombits(binary.LittleEndian.Uint32(payload[off:]))
			off += 4
		}

		event := &graph.CognitiveEvent{
			EventType:   eventType,
			Content:     content,
			Confidence:  confidence,
			SessionID:   sessionID,
			CreatedAt:   createdAt,
			AccessCount: accessCount,
			DecayScore:  decayScore,
			FeatureVec:  vec,
		}
		if err := g.RestoreNode(id, event); err != nil {
			return err
		}
	}
	return nil
}

func decodeEdges(g *graph.Graph, payload []byte) error {
	const recSize = 8 + 8 + 1 + 4 + 8
	if len(payload)%recSize != 0 {
		return ErrTruncatedSection
	}
	for off := 0; off < len(payload); off += recSize {
		source := binary.LittleEndian.Uint64(payload[off:])
		target := binary.LittleEndian.Uint64(payload[off+8:])
		edgeType := graph.EdgeType(payload[off+16])
		weight := float32frombits(binary.LittleEndian.Uint32(payload[off+17:]))
		createdAt := binary.LittleEndian.Uint64(payload[off+21:])

		err := g.AddEdge(graph.Edge{
			SourceID:  source,
			TargetID:  target,
			EdgeType:  edgeType,
			Weight:    weight,
			CreatedAt: createdAt,
		})
		if err != nil && !errors.Is(err, graph.ErrDuplicateEdge) {
			return err
		}
	}
	return nil
}

func decodeTermIndex(payload []byte) (*graph.TermIndex, error) {
	if len(payload) < 16 {
		return nil, ErrTruncatedSection
	}
	docCount := binary.LittleEndian.Uint64(payload[0:8])
	avgDocLength := float32frombits(binary.LittleEndian.Uint32(payload[8:12]))
	termCount := binary.LittleEndian.Uint32(payload[12:16])
	off := 16

	postings := make(map[string][]graph.Posting, termCount)
	for i := uint32(0); i < termCount; i++ {
		if off+2 > len(payload) {
			return nil, ErrTruncatedSection
		}
		termLen := binary.LittleEndian.Uint16(payload[off:])
		off += 2
		if off+int(termLen)+4 > len(payload) {
			return nil, ErrTruncatedSection
		}
		term := string(payload[off : off+int(termLen)])
		off += int(termLen)

		postingCount := binary.LittleEndian.Uint32(payload[off:])
		off += 4

		list := make([]graph.Posting, postingCount)
		for j := range list {
			if off+12 > len(payload) {
				return nil, ErrTruncatedSection
			}
			list[j] = graph.Posting{
				NodeID: binary.LittleEndian.Uint64(payload[off:]),
				TF:     binary.LittleEndian.Uint32(payload[off+8:]),
			}
			off += 12
		}
		postings[term] = list
	}

	return graph.TermIndexFromRaw(docCount, avgDocLength, postings), nil
}

func decodeDocLengths(payload []byte) (*graph.DocLengths, error) {
	if len(payload) < 8 {
		return nil, ErrTruncatedSection
	}
	count := binary.LittleEndian.Uint64(payload[0:8])
	off := 8
	if off+4*int(count) > len(payload) {
		return nil, ErrTruncatedSection
	}
	lengths := make([]uint32, count)
	for i := range lengths {
		lengths[i] = binary.LittleEndian.Uint32(payload[off:])
		off += 4
	}
	return graph.DocLengthsFromRaw(lengths), nil
}
