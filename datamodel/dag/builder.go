package dag

import (
	"chaindrive/cid"
	"fmt"
)

// DefaultChunkCapacity is the maximum payload a single node carries. Files
// above this size are split into chunk nodes linked from a file node.
const DefaultChunkCapacity = 256 * 1024

// BuiltNode is one node produced by a builder run, before persistence.
type BuiltNode struct {
	Cid     cid.Cid
	Type    NodeType
	Payload []byte
	Size    uint64
}

// BuildResult is the full output of one builder run: the root CID plus every
// node of the subtree, leaves first, root last.
type BuildResult struct {
	Root  cid.Cid
	Size  uint64
	Nodes []*BuiltNode
}

// RootLink returns the result as a link suitable for a parent folder node.
func (r *BuildResult) RootLink() Link {
	return Link{Cid: r.Root, Size: r.Size}
}

// Builder deterministically turns ordered byte streams and folder trees into
// content-addressed nodes. It is pure CPU work and carries no state beyond
// the chunk capacity, so a single Builder is safe for concurrent use.
type Builder struct {
	capacity int
}

func NewBuilder(capacity int) *Builder {
	if capacity <= 0 {
		capacity = DefaultChunkCapacity
	}
	return &Builder{capacity: capacity}
}

// BuildFile builds the DAG for a file from its transport chunks.
//
// The transport chunking is irrelevant to the result: the chunks are treated
// as one logical byte stream and re-split at the builder's capacity, so the
// same bytes always yield the same root CID no matter how they were uploaded.
// declaredSize, when non-zero, must match the actual byte count; a mismatch
// is an ErrEncoding and never silently truncated.
func (b *Builder) BuildFile(name string, chunks [][]byte, declaredSize uint64) (*BuildResult, error) {
	var total uint64
	for _, c := range chunks {
		total += uint64(len(c))
	}
	if declaredSize != 0 && declaredSize != total {
		return nil, fmt.Errorf("%w: declared size %d does not match %d actual bytes", ErrEncoding, declaredSize, total)
	}

	// Flatten the transport chunks into capacity-sized slices.
	data := make([]byte, 0, total)
	for _, c := range chunks {
		data = append(data, c...)
	}

	// Small file: a single file node with inline data.
	if total <= uint64(b.capacity) {
		node, err := buildNode(&Payload{
			Type: uint8(NodeTypeFile),
			Name: name,
			Size: total,
			Data: data,
		}, NodeTypeFile)
		if err != nil {
			return nil, err
		}
		return &BuildResult{Root: node.Cid, Size: total, Nodes: []*BuiltNode{node}}, nil
	}

	// Large file: chunk nodes linked from a file node, in stream order.
	var nodes []*BuiltNode
	var links []Link
	for off := 0; off < len(data); off += b.capacity {
		end := min(off+b.capacity, len(data))
		leaf, err := buildNode(&Payload{
			Type: uint8(NodeTypeChunk),
			Size: uint64(end - off),
			Data: data[off:end],
		}, NodeTypeChunk)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, leaf)
		links = append(links, Link{Cid: leaf.Cid, Size: leaf.Size})
	}

	root, err := buildNode(&Payload{
		Type:  uint8(NodeTypeFile),
		Name:  name,
		Size:  total,
		Links: links,
	}, NodeTypeFile)
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, root)

	return &BuildResult{Root: root.Cid, Size: total, Nodes: nodes}, nil
}

// BuildFolder builds the single folder node for a directory, given the
// already-computed links of its children. Children must be passed in the
// folder's snapshot order; the order is part of the encoding. The folder's
// size is the sum of the children's sizes, zero for an empty folder.
func (b *Builder) BuildFolder(name string, children []Link) (*BuildResult, error) {
	var total uint64
	for _, l := range children {
		total += l.Size
	}

	node, err := buildNode(&Payload{
		Type:  uint8(NodeTypeFolder),
		Name:  name,
		Size:  total,
		Links: children,
	}, NodeTypeFolder)
	if err != nil {
		return nil, err
	}

	return &BuildResult{Root: node.Cid, Size: total, Nodes: []*BuiltNode{node}}, nil
}

func buildNode(p *Payload, t NodeType) (*BuiltNode, error) {
	raw, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}
	c, err := cid.Sum(cidTypeFor(t), raw)
	if err != nil {
		return nil, err
	}
	return &BuiltNode{Cid: *c, Type: t, Payload: raw, Size: p.Size}, nil
}
