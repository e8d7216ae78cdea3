package scatter

import (
	"github.com/getlantern/errors"
)

var errShortFrame = errors.New("truncated or corrupt frame")
