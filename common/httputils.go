package common

import (
	"fmt"
)

func HttpStatusIsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// ErrUnexpectedStatus is returned by outbound API clients when the remote
// side answers with a non 2xx status.
type ErrUnexpectedStatus struct {
	Service    string
	StatusCode int
	RespBody   string
}

func (e *ErrUnexpectedStatus) Error() string {
	return fmt.Sprintf("%s responded with status %d, body: '%s'", e.Service, e.StatusCode, e.RespBody)
}
