package index

import (
	"github.com/kamusis/gemhub/internal/gemspec"
)

// Entry is one specification held by the canonical index.
type Entry struct {
	// Seq is the insertion sequence inside the snapshot. Overwriting an entry
	// keeps its Seq.
	Seq          uint64                `cbor:"seq"`
	OriginalName string                `cbor:"original_name"`
	Spec         gemspec.Specification `cbor:"spec"`
}

// header precedes the entries in a snapshot.
type header struct {
	NextSeq uint64 `cbor:"next_seq"`
	Count   int    `cbor:"count"`
}

// Tuple is one row of the derived specs files:
// [name, version, platform, purl].
type Tuple struct {
	_        struct{} `cbor:",toarray"`
	Name     string
	Version  string
	Platform string
	PURL     string
}

// Manifest describes the derived artifacts of one rebuild.
type Manifest struct {
	Format      int    `json:"format"`
	Tag         string `json:"tag"`
	GeneratedAt string `json:"generated_at"`
	Specs       int    `json:"specs"`
	Latest      int    `json:"latest"`
	SpecsFile   string `json:"specs_file"`
	LatestFile  string `json:"latest_file"`
}
