package transport

import (
	"encoding/json"

	"github.com/vango-dev/pulse/pkg/protocol"
)

type errorBody struct {
	Error *protocol.ErrorInfo `json:"error"`
}

// decodeErrorBody reads {"error": {...}} or a bare ErrorInfo.
func decodeErrorBody(body []byte) (*protocol.ErrorInfo, error) {
	var wrapped errorBody
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil {
		return wrapped.Error, nil
	}
	info := &protocol.ErrorInfo{}
	if err := json.Unmarshal(body, info); err != nil {
		return nil, err
	}
	return info, nil
}
