// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package message

import "strconv"

// ReturnCode is the application level result of a method call or property update.
type ReturnCode int

// Method return codes.
const (
	Success ReturnCode = iota
	ClientError
	ServerError
	TransportError
	PayloadError
	Timeout
	UnknownError
	NotImplemented
)

// String returns the return code name.
func (rc ReturnCode) String() string {
	switch rc {
	case Success:
		return "success"
	case ClientError:
		return "client error"
	case ServerError:
		return "server error"
	case TransportError:
		return "transport error"
	case PayloadError:
		return "payload error"
	case Timeout:
		return "timeout"
	case UnknownError:
		return "unknown error"
	case NotImplemented:
		return "not implemented"
	default:
		return "return code " + strconv.Itoa(int(rc))
	}
}
