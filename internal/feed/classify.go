package feed

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
	"github.com/alanyoungcy/tickerwatch/internal/platform/binance"
)

// ErrHeartbeat wraps a failed liveness probe.
var ErrHeartbeat = errors.New("heartbeat failed")

// rejectStatuses are handshake statuses that mean the exchange is refusing
// this client rather than failing transiently.
var rejectStatuses = map[int]bool{
	http.StatusForbidden:                  true,
	http.StatusTooManyRequests:            true,
	http.StatusTeapot:                     true,
	http.StatusUnavailableForLegalReasons: true,
}

// Classify maps a session error to a fault. Errors that already carry a
// *domain.Fault are returned unchanged.
func Classify(err error) *domain.Fault {
	if err == nil {
		return nil
	}

	var f *domain.Fault
	if errors.As(err, &f) {
		return f
	}

	var hs *binance.HandshakeError
	if errors.As(err, &hs) {
		if rejectStatuses[hs.StatusCode] {
			return &domain.Fault{Kind: domain.FaultRejected, Code: hs.StatusCode, Err: err}
		}
		return &domain.Fault{Kind: domain.FaultProtocol, Code: hs.StatusCode, Err: err}
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.ClosePolicyViolation, websocket.CloseTryAgainLater:
			return &domain.Fault{Kind: domain.FaultRejected, Code: ce.Code, Err: err}
		case websocket.CloseProtocolError, websocket.CloseUnsupportedData,
			websocket.CloseInvalidFramePayloadData, websocket.CloseMessageTooBig:
			return &domain.Fault{Kind: domain.FaultProtocol, Code: ce.Code, Err: err}
		default:
			return &domain.Fault{Kind: domain.FaultTransient, Code: ce.Code, Err: err}
		}
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		return &domain.Fault{Kind: domain.FaultProtocol, Err: err}
	}

	return &domain.Fault{Kind: domain.FaultTransient, Err: err}
}
