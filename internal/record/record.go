// Package record defines the application version record and the
// normalization rules that turn raw extracted archive metadata into one.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Variant classifies an archive as a stock build or a modified one.
type Variant string

const (
	Unmodified Variant = "unmodified"
	Tweaked    Variant = "tweaked"
)

var (
	// ErrMalformedRecord indicates a raw record missing its bundle
	// identifier or version. The record is dropped; the pass continues.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrInconsistentVariant indicates a record flagged as tweaked with no
	// tweak name. The record is dropped; the pass continues.
	ErrInconsistentVariant = errors.New("tweaked record without tweak name")
)

// Raw is the metadata map handed over by the extraction collaborator,
// one per discovered archive. Nothing in it is trusted until normalized.
type Raw struct {
	BundleID     string    `json:"bundle_id"`
	Version      string    `json:"version"`
	Build        string    `json:"build,omitempty"`
	Tweaked      bool      `json:"tweaked"`
	TweakName    string    `json:"tweak_name,omitempty"`
	Entitlements []string  `json:"entitlements,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	AssetRef     string    `json:"asset_ref"`
	IconRef      string    `json:"icon_ref,omitempty"`
	Screenshots  []string  `json:"screenshots,omitempty"`
	MinOS        string    `json:"min_os,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// AVR is one discovered archive's canonical metadata. Identifiers are
// case-sensitive; only surrounding whitespace is stripped. Version strings
// are carried verbatim after trimming since upstream does not guarantee
// semver.
type AVR struct {
	BundleID     string
	Version      string
	Build        string
	Variant      Variant
	TweakName    string // display casing; empty unless Variant == Tweaked
	Entitlements []string
	SizeBytes    int64
	AssetRef     string
	IconRef      string
	Screenshots  []string
	MinOS        string
	DiscoveredAt time.Time
}

// Key identifies an AVR within one aggregation pass. Two records with the
// same key are the same logical version; the most recently discovered wins.
type Key struct {
	BundleID  string
	Version   string
	Variant   Variant
	TweakName string // canonical (case-folded) form
}

// Key returns the record's dedup key.
func (r AVR) Key() Key {
	return Key{
		BundleID:  r.BundleID,
		Version:   r.Version,
		Variant:   r.Variant,
		TweakName: CanonicalTweak(r.TweakName),
	}
}

// VariantKey is the record's position in priority override lists:
// "unmodified" for stock builds, the canonical tweak name otherwise.
func (r AVR) VariantKey() string {
	if r.Variant == Unmodified {
		return string(Unmodified)
	}
	return CanonicalTweak(r.TweakName)
}

// CanonicalTweak collapses tweak name spellings from different sources to
// one key: trimmed and case-folded. Display casing is preserved separately
// on the AVR.
func CanonicalTweak(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Normalize validates a raw record and canonicalizes it into an AVR.
// Pure function: no lookups, no clock reads.
func Normalize(raw Raw) (AVR, error) {
	bundleID := strings.TrimSpace(raw.BundleID)
	version := strings.TrimSpace(raw.Version)

	if bundleID == "" {
		return AVR{}, fmt.Errorf("%w: empty bundle_id", ErrMalformedRecord)
	}
	if version == "" {
		return AVR{}, fmt.Errorf("%w: empty version for %s", ErrMalformedRecord, bundleID)
	}
	if raw.SizeBytes < 0 {
		return AVR{}, fmt.Errorf("%w: negative size for %s", ErrMalformedRecord, bundleID)
	}

	avr := AVR{
		BundleID:     bundleID,
		Version:      version,
		Build:        strings.TrimSpace(raw.Build),
		Variant:      Unmodified,
		Entitlements: normalizeEntitlements(raw.Entitlements),
		SizeBytes:    raw.SizeBytes,
		AssetRef:     strings.TrimSpace(raw.AssetRef),
		IconRef:      strings.TrimSpace(raw.IconRef),
		Screenshots:  raw.Screenshots,
		MinOS:        strings.TrimSpace(raw.MinOS),
		DiscoveredAt: raw.DiscoveredAt,
	}

	if err := classify(&avr, raw.Tweaked, raw.TweakName); err != nil {
		return AVR{}, err
	}

	return avr, nil
}

// classify assigns the variant from the upstream marker pair and enforces
// the invariant that a tweaked record carries a tweak name. A tweak name on
// an unmarked record is discarded rather than promoted: the marker boolean
// is the source of truth.
func classify(avr *AVR, tweaked bool, tweakName string) error {
	name := strings.TrimSpace(tweakName)
	if !tweaked {
		avr.Variant = Unmodified
		avr.TweakName = ""
		return nil
	}
	if name == "" {
		return fmt.Errorf("%w: %s %s", ErrInconsistentVariant, avr.BundleID, avr.Version)
	}
	avr.Variant = Tweaked
	avr.TweakName = name
	return nil
}

// normalizeEntitlements trims each entry and drops blanks, preserving order
// and case.
func normalizeEntitlements(ents []string) []string {
	if len(ents) == 0 {
		return nil
	}
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		e = strings.TrimSpace(e)
		if e != "" {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Dedup merges records that share a key, keeping the most recently
// discovered. Input order is preserved for the survivors (first occurrence
// position wins, its payload replaced by the freshest duplicate).
func Dedup(records []AVR) []AVR {
	index := make(map[Key]int, len(records))
	out := make([]AVR, 0, len(records))
	for _, r := range records {
		k := r.Key()
		if i, ok := index[k]; ok {
			if r.DiscoveredAt.After(out[i].DiscoveredAt) {
				out[i] = r
			}
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}
