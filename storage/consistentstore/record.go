package consistentstore

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records stored in the consistent store are length-delimited
// tag/length/value encodings using the protobuf wire format, with
// stable field numbers below, so the schema can evolve without a
// coordinated rewrite of every stored value. No .proto/codegen is
// involved; these are hand-written using protowire directly, the same
// wire primitives protoc-generated code would produce.

// pendingRecord field numbers.
const (
	fieldPendingLeafInput  = 1
	fieldPendingExtraData  = 2
	fieldPendingTimestamp  = 3
	fieldPendingEntryType  = 4
	fieldPendingSCTSig     = 5
	fieldPendingSCTExt     = 6
)

type pendingRecord struct {
	leafInput []byte
	extraData []byte
	timestamp uint64
	entryType uint64
	sctSig    []byte
	sctExt    []byte
}

func (r *pendingRecord) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldPendingLeafInput, protowire.BytesType)
	b = protowire.AppendBytes(b, r.leafInput)
	b = protowire.AppendTag(b, fieldPendingExtraData, protowire.BytesType)
	b = protowire.AppendBytes(b, r.extraData)
	b = protowire.AppendTag(b, fieldPendingTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, r.timestamp)
	b = protowire.AppendTag(b, fieldPendingEntryType, protowire.VarintType)
	b = protowire.AppendVarint(b, r.entryType)
	b = protowire.AppendTag(b, fieldPendingSCTSig, protowire.BytesType)
	b = protowire.AppendBytes(b, r.sctSig)
	b = protowire.AppendTag(b, fieldPendingSCTExt, protowire.BytesType)
	b = protowire.AppendBytes(b, r.sctExt)
	return b
}

func unmarshalPendingRecord(data []byte) (*pendingRecord, error) {
	r := &pendingRecord{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("consume tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == fieldPendingLeafInput && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("consume leaf_input: %w", protowire.ParseError(n))
			}
			r.leafInput = append([]byte(nil), v...)
			data = data[n:]
		case num == fieldPendingExtraData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("consume extra_data: %w", protowire.ParseError(n))
			}
			r.extraData = append([]byte(nil), v...)
			data = data[n:]
		case num == fieldPendingTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("consume timestamp: %w", protowire.ParseError(n))
			}
			r.timestamp = v
			data = data[n:]
		case num == fieldPendingEntryType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("consume entry_type: %w", protowire.ParseError(n))
			}
			r.entryType = v
			data = data[n:]
		case num == fieldPendingSCTSig && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("consume sct_sig: %w", protowire.ParseError(n))
			}
			r.sctSig = append([]byte(nil), v...)
			data = data[n:]
		case num == fieldPendingSCTExt && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("consume sct_ext: %w", protowire.ParseError(n))
			}
			r.sctExt = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return r, nil
}

// sthRecord field numbers.
const (
	fieldSTHTreeSize  = 1
	fieldSTHTimestamp = 2
	fieldSTHRootHash  = 3
	fieldSTHSignature = 4
)

type sthRecord struct {
	treeSize  uint64
	timestamp uint64
	rootHash  []byte
	signature []byte
}

func (r *sthRecord) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSTHTreeSize, protowire.VarintType)
	b = protowire.AppendVarint(b, r.treeSize)
	b = protowire.AppendTag(b, fieldSTHTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, r.timestamp)
	b = protowire.AppendTag(b, fieldSTHRootHash, protowire.BytesType)
	b = protowire.AppendBytes(b, r.rootHash)
	b = protowire.AppendTag(b, fieldSTHSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, r.signature)
	return b
}

func unmarshalSTHRecord(data []byte) (*sthRecord, error) {
	r := &sthRecord{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("consume tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == fieldSTHTreeSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("consume tree_size: %w", protowire.ParseError(n))
			}
			r.treeSize = v
			data = data[n:]
		case num == fieldSTHTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("consume timestamp: %w", protowire.ParseError(n))
			}
			r.timestamp = v
			data = data[n:]
		case num == fieldSTHRootHash && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("consume root_hash: %w", protowire.ParseError(n))
			}
			r.rootHash = append([]byte(nil), v...)
			data = data[n:]
		case num == fieldSTHSignature && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("consume signature: %w", protowire.ParseError(n))
			}
			r.signature = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return r, nil
}

// nodeStateRecord field numbers.
const (
	fieldNodeStateNodeID             = 1
	fieldNodeStateNewestSTH          = 2
	fieldNodeStateContiguousTreeSize = 3
	fieldNodeStateUpdatedAt          = 4
)

type nodeStateRecord struct {
	nodeID             string
	newestSTH          *sthRecord
	contiguousTreeSize uint64
	updatedAt          uint64
}

func (r *nodeStateRecord) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldNodeStateNodeID, protowire.BytesType)
	b = protowire.AppendString(b, r.nodeID)
	if r.newestSTH != nil {
		b = protowire.AppendTag(b, fieldNodeStateNewestSTH, protowire.BytesType)
		b = protowire.AppendBytes(b, r.newestSTH.marshal())
	}
	b = protowire.AppendTag(b, fieldNodeStateContiguousTreeSize, protowire.VarintType)
	b = protowire.AppendVarint(b, r.contiguousTreeSize)
	b = protowire.AppendTag(b, fieldNodeStateUpdatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, r.updatedAt)
	return b
}

func unmarshalNodeStateRecord(data []byte) (*nodeStateRecord, error) {
	r := &nodeStateRecord{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("consume tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch {
		case num == fieldNodeStateNodeID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("consume node_id: %w", protowire.ParseError(n))
			}
			r.nodeID = v
			data = data[n:]
		case num == fieldNodeStateNewestSTH && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("consume newest_sth: %w", protowire.ParseError(n))
			}
			sth, err := unmarshalSTHRecord(v)
			if err != nil {
				return nil, fmt.Errorf("unmarshal newest_sth: %w", err)
			}
			r.newestSTH = sth
			data = data[n:]
		case num == fieldNodeStateContiguousTreeSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("consume contiguous_tree_size: %w", protowire.ParseError(n))
			}
			r.contiguousTreeSize = v
			data = data[n:]
		case num == fieldNodeStateUpdatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("consume updated_at: %w", protowire.ParseError(n))
			}
			r.updatedAt = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return r, nil
}
