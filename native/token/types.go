package token

// Collection describes one plan's entitlement token family. A single metadata
// URI covers every token in the collection; token identifiers start at 1 and
// are never reused, even after a reclaim.
type Collection struct {
	Plan        [20]byte `json:"plan"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	MetadataURI string   `json:"metadataURI"`
	NextTokenID uint64   `json:"nextTokenId"`
	Minted      uint64   `json:"minted"`
}

// Clone returns a copy of the collection record.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Capability identifiers advertised for external interoperability. The values
// match the ERC-165 ids of the ERC-721 interface families so off-chain
// tooling can probe the ledger the way it probes a token contract.
var (
	InterfaceOwnership  = [4]byte{0x80, 0xac, 0x58, 0xcd}
	InterfaceMetadata   = [4]byte{0x5b, 0x5e, 0x13, 0x9f}
	InterfaceEnumerable = [4]byte{0x78, 0x0e, 0x9d, 0x63}
)

// SupportsInterface reports whether the ledger implements the capability
// family identified by id.
func SupportsInterface(id [4]byte) bool {
	switch id {
	case InterfaceOwnership, InterfaceMetadata, InterfaceEnumerable:
		return true
	default:
		return false
	}
}
