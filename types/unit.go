package types

// UnclassifiedMarker is the literal that marks reads without a barcode call.
const UnclassifiedMarker = "unclassified"

// Unit is one binary alignment artifact produced by the external tools,
// one per barcode (or unclassified).
type Unit struct {
	// Label is the barcode label derived from the file name.
	Label string
	// Path is the BAM file location in scratch or durable storage.
	Path string
}
