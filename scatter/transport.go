package scatter

import (
	"context"

	"github.com/getlantern/qbroker/common"
)

// Transport sends one InstanceRequest to one server and returns the raw
// (still-framed) response bytes, or an error if the call itself failed
// (as opposed to the server returning a well-formed error response, which
// is carried inside the response bytes as a ProcessingException, spec §7).
type Transport interface {
	ExecuteQuery(ctx context.Context, server common.ServerInstance, req *InstanceRequest) ([]byte, error)
}
