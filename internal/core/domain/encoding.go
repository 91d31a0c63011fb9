package domain

// Encoding labels the decoder the pipeline applies to a source file.
type Encoding string

const (
	EncodingUTF8 Encoding = "UTF-8"
	EncodingGBK  Encoding = "GBK"
)

// EncodingGuess is the detector's decision plus the advisory raw result.
type EncodingGuess struct {
	Encoding   Encoding
	Label      string
	Confidence int
}
