package detection

import (
	"net/http"

	"VisionStream/pkg/response"
)

var (
	ErrUpgradeRequired    = response.NewError(http.StatusUpgradeRequired, "websocket upgrade required")
	ErrMalformedEnvelope  = response.NewError(http.StatusBadRequest, "Malformed message")
	ErrMalformedFrame     = response.NewError(http.StatusBadRequest, "Malformed frame event")
	ErrUnknownEvent       = response.NewError(http.StatusBadRequest, "Unknown event")
	ErrUnsupportedMessage = response.NewError(http.StatusUnsupportedMediaType, "Unsupported message type")
)
