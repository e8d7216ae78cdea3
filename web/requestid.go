package web

import (
	"fmt"
	"time"

	"github.com/jmcvetta/randutil"
)

// newRequestId generates a request id unique enough for log correlation: a
// timestamp prefix for rough ordering plus a short random suffix, the same
// randutil-based approach the teacher uses to generate synthetic test data.
func newRequestId() string {
	suffix, err := randutil.AlphaStringRange(6, 6)
	if err != nil {
		suffix = "000000"
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), suffix)
}
