// Package commitment computes the content commitment anchoring a minted
// token to its supporting paperwork: a Merkle root over the finalized
// document content hashes, in canonical document-type order, so the value
// is deterministic and re-computable for audit.
package commitment

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
)

var (
	leafPrefix     = []byte{0x00}
	interiorPrefix = []byte{0x01}
)

// Leaf is one finalized document in the bundle set.
type Leaf struct {
	DocumentType string
	Version      int
	ContentHash  string // hex sha256 of the rendered document
}

// Root returns the hex Merkle root over the leaves. Leaves are sorted by
// (document type, version) before hashing, so callers may pass them in any
// order and still obtain the same commitment.
func Root(leaves []Leaf) (string, error) {
	if len(leaves) == 0 {
		return "", errors.New("commitment: no leaves")
	}

	sorted := make([]Leaf, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DocumentType != sorted[j].DocumentType {
			return sorted[i].DocumentType < sorted[j].DocumentType
		}
		return sorted[i].Version < sorted[j].Version
	})

	hashes := make([][32]byte, 0, len(sorted))
	for _, l := range sorted {
		contentHash := strings.TrimSpace(strings.ToLower(l.ContentHash))
		raw, err := hex.DecodeString(contentHash)
		if err != nil || len(raw) != sha256.Size {
			return "", errors.New("commitment: leaf content hash must be hex sha256")
		}
		hashes = append(hashes, leafHash(l.DocumentType, l.Version, raw))
	}

	root := merkleRoot(hashes)
	return hex.EncodeToString(root[:]), nil
}

// leafHash binds type, version and content into the leaf preimage, so a
// regenerated bundle with identical content still yields a distinct root.
func leafHash(documentType string, version int, contentHash []byte) [32]byte {
	h := sha256.New()
	h.Write(leafPrefix)
	h.Write([]byte(documentType))
	h.Write([]byte{0x00})
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], uint32(version))
	h.Write(v[:])
	h.Write(contentHash)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func interiorHash(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(interiorPrefix)
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func merkleRoot(nodes [][32]byte) [32]byte {
	switch len(nodes) {
	case 1:
		return nodes[0]
	default:
		k := prevPowerOfTwo(len(nodes))
		left := merkleRoot(nodes[:k])
		right := merkleRoot(nodes[k:])
		return interiorHash(left, right)
	}
}

// prevPowerOfTwo returns the largest power of two less than n.
func prevPowerOfTwo(n int) int {
	p := 1
	for p*2 < n {
		p *= 2
	}
	return p
}
