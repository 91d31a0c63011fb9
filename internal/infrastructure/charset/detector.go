package charset

import (
	"strings"

	"github.com/saintfish/chardet"

	"github.com/kirillkom/chapterflow/internal/core/domain"
)

// DefaultSampleSize is how many leading bytes are inspected.
const DefaultSampleSize = 4096

// Detector maps raw detector output onto the two encodings the pipeline decodes.
// Double-byte Chinese labels select GBK; everything else, including failures, is UTF-8.
type Detector struct {
	sampleSize int
	detector   *chardet.Detector
}

func NewDetector(sampleSize int) *Detector {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Detector{
		sampleSize: sampleSize,
		detector:   chardet.NewTextDetector(),
	}
}

func (d *Detector) SampleSize() int {
	return d.sampleSize
}

func (d *Detector) Detect(sample []byte) domain.EncodingGuess {
	if len(sample) > d.sampleSize {
		sample = sample[:d.sampleSize]
	}
	if len(sample) == 0 {
		return domain.EncodingGuess{Encoding: domain.EncodingUTF8}
	}

	result, err := d.detector.DetectBest(sample)
	if err != nil || result == nil {
		return domain.EncodingGuess{Encoding: domain.EncodingUTF8}
	}
	return Decide(result.Charset, result.Confidence)
}

// Decide applies the fallback policy to a raw detector label. Confidence is
// recorded but never changes the decision.
func Decide(label string, confidence int) domain.EncodingGuess {
	guess := domain.EncodingGuess{
		Encoding:   domain.EncodingUTF8,
		Label:      label,
		Confidence: confidence,
	}
	if isDoubleByteChinese(label) {
		guess.Encoding = domain.EncodingGBK
	}
	return guess
}

func isDoubleByteChinese(label string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(label))
	normalized = strings.NewReplacer("-", "", "_", "", " ", "").Replace(normalized)
	switch normalized {
	case "GB2312", "GBK", "GB18030", "EUCCN", "CP936", "HZGB2312":
		return true
	default:
		return false
	}
}
