package backend

import "slices"

// BackendCapability represents a capability that a backend can provide
type BackendCapability string

const (
	CapabilityObjectStorage BackendCapability = "object_storage"
	CapabilityStreaming     BackendCapability = "streaming"
	CapabilityRangeRead     BackendCapability = "range_read"
	CapabilityAppend        BackendCapability = "append"
	CapabilityOffsetWrite   BackendCapability = "offset_write"
	CapabilitySignedURL     BackendCapability = "signed_url"
	CapabilityPrefixDelete  BackendCapability = "prefix_delete"
	CapabilityAtomicRename  BackendCapability = "atomic_rename"
	CapabilityListingCache  BackendCapability = "listing_cache"
)

// BackendCapabilities describes what a backend supports
type BackendCapabilities struct {
	Capabilities  []BackendCapability `json:"capabilities"`
	MinObjectSize int64               `json:"min_object_size"`
	MaxObjectSize int64               `json:"max_object_size"`
}

// Contains checks if a capability is supported
func (bc *BackendCapabilities) Contains(cap BackendCapability) bool {
	return slices.Contains(bc.Capabilities, cap)
}
