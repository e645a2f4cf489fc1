package peer

import "fmt"

// Exit codes shared by ipcpipe commands and the peer.
const (
	ExitCodeOK       = 0 // completed
	ExitCodeUsage    = 1 // invalid arguments or configuration
	ExitCodeCrash    = 2 // peer died without finishing
	ExitCodeProtocol = 3 // communication or protocol failure
)

// Status classifies how a run ended.
type Status string

// Run statuses.
const (
	StatusSuccess       Status = "success"
	StatusUsageError    Status = "usage_error"
	StatusPeerCrash     Status = "peer_crash"
	StatusProtocolError Status = "protocol_error"
)

// Outcome is the status of a run and a human readable reason.
type Outcome struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// DetermineOutcome combines the peer's exit code with whether the local
// side finished cleanly.
//
//   - 0 with a clean local run: success
//   - 0 without one: the peer gave up early, a protocol error
//   - 1: the peer rejected its arguments
//   - 3: the peer saw a protocol failure
//   - anything else, including signals: crash
func DetermineOutcome(exitCode int, localOK bool) Outcome {
	switch exitCode {
	case ExitCodeOK:
		if localOK {
			return Outcome{Status: StatusSuccess, Message: "run completed successfully"}
		}
		return Outcome{Status: StatusProtocolError, Message: "peer exited cleanly but the run did not complete"}
	case ExitCodeUsage:
		return Outcome{Status: StatusUsageError, Message: "peer rejected its arguments"}
	case ExitCodeProtocol:
		return Outcome{Status: StatusProtocolError, Message: "peer reported a protocol failure"}
	case ExitCodeCrash:
		return Outcome{Status: StatusPeerCrash, Message: "peer crashed"}
	default:
		return Outcome{Status: StatusPeerCrash, Message: fmt.Sprintf("peer exited with unexpected code %d", exitCode)}
	}
}

// ExitCode maps a status to the process exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusSuccess:
		return ExitCodeOK
	case StatusUsageError:
		return ExitCodeUsage
	case StatusPeerCrash:
		return ExitCodeCrash
	default:
		return ExitCodeProtocol
	}
}
