package gossip

import "github.com/clustercore/cluster/pkg/types"

// LegacyContactInfo is the wire-compatible, single-address-per-field shape
// older peers expect, as opposed to the internal multi-address
// types.ContactInfoData. This adapter exists purely for interoperability;
// nothing in this package stores data in this shape.
type LegacyContactInfo struct {
	Outset       uint64
	Gossip       string
	RPC          string
	TVU          string
	Repair       string
	ShredVersion uint16
}

// ToLegacy projects a ContactInfoData onto the legacy single-address shape.
// Tags with no matching legacy field are dropped; that is the legacy
// format's limitation, not this adapter's.
func ToLegacy(info types.ContactInfoData) LegacyContactInfo {
	return LegacyContactInfo{
		Outset:       info.Outset,
		Gossip:       info.Addresses["gossip"],
		RPC:          info.Addresses["rpc"],
		TVU:          info.Addresses["tvu"],
		Repair:       info.Addresses["repair"],
		ShredVersion: info.ShredVersion,
	}
}

// FromLegacy expands a LegacyContactInfo back into the internal
// multi-address representation.
func FromLegacy(legacy LegacyContactInfo) types.ContactInfoData {
	addrs := make(map[string]string, 4)
	if legacy.Gossip != "" {
		addrs["gossip"] = legacy.Gossip
	}
	if legacy.RPC != "" {
		addrs["rpc"] = legacy.RPC
	}
	if legacy.TVU != "" {
		addrs["tvu"] = legacy.TVU
	}
	if legacy.Repair != "" {
		addrs["repair"] = legacy.Repair
	}
	return types.ContactInfoData{
		Outset:       legacy.Outset,
		Addresses:    addrs,
		ShredVersion: legacy.ShredVersion,
	}
}
