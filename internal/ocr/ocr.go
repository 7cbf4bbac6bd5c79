// Package ocr reads the final total off a receipt photo with a hosted
// vision-language model.
package ocr

import (
	"context"
	"errors"
	"regexp"
	"strconv"
)

// Extractor returns the total amount printed on a receipt image. A zero
// amount with a nil error means no total was recognized.
type Extractor interface {
	ExtractTotal(ctx context.Context, image []byte) (int64, error)
}

var firstNumber = regexp.MustCompile(`\d+`)

// MaxTotal is the largest total accepted from a model reply.
const MaxTotal int64 = 1_000_000_000_000

// ParseTotal takes the first run of digits in the model reply. Replies
// without digits, or with a number above MaxTotal, yield 0.
func ParseTotal(reply string) int64 {
	m := firstNumber.FindString(reply)
	if m == "" {
		return 0
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil || n > MaxTotal {
		return 0
	}
	return n
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, image []byte) (int64, error)

func (f Func) ExtractTotal(ctx context.Context, image []byte) (int64, error) {
	return f(ctx, image)
}

// ErrNotConfigured is returned by Unconfigured.
var ErrNotConfigured = errors.New("ocr is not configured: set OCR_API_KEY or HF_TOKEN")

// Unconfigured fails every extraction. It stands in when no API key is set
// so read-only views keep working.
var Unconfigured = Func(func(context.Context, []byte) (int64, error) {
	return 0, ErrNotConfigured
})
