package core

import (
	"fmt"
	"math"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var amountPattern = regexp.MustCompile(`^\d{4}_\d{2}_(\d+)_`)

// NewReceiptKey builds the blob key for a receipt:
//
//	receipts/YYYY/MM/YYYY_MM_<amount>_<YYYYMMDD_HHMMSS_micro>.jpg
//
// The timestamp is the UTC form of instant with microsecond precision.
func NewReceiptKey(p Period, amount int64, instant time.Time) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if amount < 0 {
		return "", ErrNegativeAmount
	}
	return fmt.Sprintf("%s%04d_%02d_%d_%s.jpg", p.Prefix(), p.Year, p.Month, amount, keyTimestamp(instant)), nil
}

func keyTimestamp(t time.Time) string {
	t = t.UTC()
	return t.Format("20060102_150405") + fmt.Sprintf("_%06d", t.Nanosecond()/1000)
}

// ParseAmount extracts the amount encoded in the last path segment of key.
// It reports false for keys that do not follow the receipt naming scheme or
// whose amount does not fit in an int64.
func ParseAmount(key string) (int64, bool) {
	name := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		name = key[i+1:]
	}
	m := amountPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// AddAmount returns total+amount. It reports false, leaving total as is,
// when amount is negative or the sum would not fit in an int64.
func AddAmount(total, amount int64) (int64, bool) {
	if amount < 0 || amount > math.MaxInt64-total {
		return total, false
	}
	return total + amount, true
}

// KeyInPeriod reports whether key names a file directly under the period
// prefix. Keys with "." or ".." segments never match.
func KeyInPeriod(key string, p Period) bool {
	return path.Clean(key) == key && path.Dir(key)+"/" == p.Prefix()
}

// MonotonicClock hands out strictly increasing instants at microsecond
// resolution, so two keys minted in the same process never share a timestamp.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewMonotonicClock(now func() time.Time) *MonotonicClock {
	if now == nil {
		now = time.Now
	}
	return &MonotonicClock{now: now}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	if now == nil {
		now = time.Now
	}
	t := now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
