package port

import (
	"context"
	"errors"

	"github.com/stayconnect/stayconnect/internal/core/domain"
)

// ErrPermissionDenied means the device layer refused capture. The call
// continues without the affected stream; this never tears a session down.
var ErrPermissionDenied = errors.New("media capture permission denied")

// Capture is an acquired set of local device streams. Release must be
// called exactly once on every exit path of the owning session.
type Capture interface {
	Release()
}

// MediaCapture acquires camera/microphone streams for an active call.
type MediaCapture interface {
	Acquire(ctx context.Context, t domain.CallType) (Capture, error)
}
