// Package region classifies a raw country/locale signal into the two region
// taxonomies the agent cares about: where recordings are stored and which
// upload endpoint is active. The mapping is policy data, not control logic.
package region

import "strings"

// CountryCode is the raw locale signal produced by an external detector.
// It may be noisy; Resolve normalizes before lookup.
type CountryCode string

// CountryUnknown is the detector's explicit "could not determine" value.
const CountryUnknown CountryCode = "UNKNOWN"

// RecordingRegion selects the local storage bucket for internal recordings.
type RecordingRegion string

const (
	RecordingUnset               RecordingRegion = "unset"
	RecordingMainland            RecordingRegion = "mainland"
	RecordingRestOfWorldExplicit RecordingRegion = "row-explicit"
)

func (r RecordingRegion) String() string { return string(r) }

// SyncRegion selects the active upload destination. SyncNone means there is
// no valid destination and the sync pipeline must stay down.
type SyncRegion string

const (
	SyncNone        SyncRegion = "none"
	SyncMainland    SyncRegion = "mainland"
	SyncRestOfWorld SyncRegion = "row"
)

func (r SyncRegion) String() string { return string(r) }

// Endpoint describes the upload destination for a sync region.
type Endpoint struct {
	// DataSource is the storage-location descriptor the synchronizer pulls
	// from. It is matched as a prefix against recording bucket names.
	DataSource string `json:"dataSource"`
	BaseURL    string `json:"baseUrl"`
}

// Policy is the full classification table. Countries not listed anywhere
// resolve to the ordinary-foreign class (RecordingUnset / SyncRestOfWorld).
type Policy struct {
	// Mainland lists mainland-flagged country codes.
	Mainland []CountryCode `json:"mainland"`
	// Explicit lists locale values flagged into their own rest-of-world
	// recording bucket. They share the rest-of-world sync endpoint.
	Explicit []CountryCode `json:"explicit"`
	// Unknown lists codes treated as undetected, in addition to the empty
	// string which is always undetected.
	Unknown []CountryCode `json:"unknown"`

	// Endpoints maps each non-none sync region to its upload destination.
	Endpoints map[SyncRegion]Endpoint `json:"endpoints"`
	// Buckets maps each recording region to its storage subdirectory.
	Buckets map[RecordingRegion]string `json:"buckets"`
}

// Default returns the built-in policy table. Operators override it with a
// policy file; see Load.
func Default() Policy {
	return Policy{
		Mainland: []CountryCode{"CN", "CHN", "CHINA"},
		Explicit: []CountryCode{"OTHER"},
		Unknown:  []CountryCode{CountryUnknown, "ZZ"},
		Endpoints: map[SyncRegion]Endpoint{
			SyncMainland:    {DataSource: "mainland", BaseURL: "https://telemetry.cn.visiondrive.io"},
			SyncRestOfWorld: {DataSource: "row", BaseURL: "https://telemetry.visiondrive.io"},
		},
		Buckets: map[RecordingRegion]string{
			RecordingUnset:               "row/default",
			RecordingMainland:            "mainland",
			RecordingRestOfWorldExplicit: "row/other",
		},
	}
}

// Resolve maps a raw country code to its recording and sync regions. Pure and
// total: every input resolves, unlisted countries are ordinary-foreign.
func (p Policy) Resolve(country CountryCode) (RecordingRegion, SyncRegion) {
	c := normalize(country)
	switch {
	case c == "" || containsCode(p.Unknown, c):
		return RecordingUnset, SyncNone
	case containsCode(p.Mainland, c):
		return RecordingMainland, SyncMainland
	case containsCode(p.Explicit, c):
		return RecordingRestOfWorldExplicit, SyncRestOfWorld
	default:
		return RecordingUnset, SyncRestOfWorld
	}
}

// Endpoint returns the upload destination for a sync region. The none region
// has no endpoint.
func (p Policy) Endpoint(r SyncRegion) (Endpoint, bool) {
	ep, ok := p.Endpoints[r]
	return ep, ok
}

// Bucket returns the storage subdirectory for a recording region.
func (p Policy) Bucket(r RecordingRegion) string {
	if b, ok := p.Buckets[r]; ok {
		return b
	}
	return p.Buckets[RecordingUnset]
}

// Validate checks that the table can actually drive the coordinators.
func (p Policy) Validate() error {
	for _, r := range []SyncRegion{SyncMainland, SyncRestOfWorld} {
		ep, ok := p.Endpoints[r]
		if !ok {
			return &PolicyError{Field: "endpoints", Detail: "missing endpoint for sync region " + r.String()}
		}
		if ep.BaseURL == "" || ep.DataSource == "" {
			return &PolicyError{Field: "endpoints", Detail: "incomplete endpoint for sync region " + r.String()}
		}
	}
	for _, r := range []RecordingRegion{RecordingUnset, RecordingMainland, RecordingRestOfWorldExplicit} {
		if p.Buckets[r] == "" {
			return &PolicyError{Field: "buckets", Detail: "missing bucket for recording region " + r.String()}
		}
	}
	return nil
}

// PolicyError reports an invalid policy table.
type PolicyError struct {
	Field  string
	Detail string
}

func (e *PolicyError) Error() string {
	return "invalid region policy: " + e.Field + ": " + e.Detail
}

func normalize(c CountryCode) string {
	return strings.ToUpper(strings.TrimSpace(string(c)))
}

func containsCode(list []CountryCode, normalized string) bool {
	for _, c := range list {
		if normalize(c) == normalized {
			return true
		}
	}
	return false
}
