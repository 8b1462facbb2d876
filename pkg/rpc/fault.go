package rpc

import "supvisors/pkg/types"

// Fault is a contract error surfaced to the RPC caller, per §7's policy
// that contract errors are reported rather than absorbed or transformed.
type Fault struct {
	Code    types.FaultCode
	Message string
}

func (f *Fault) Error() string {
	return string(f.Code) + ": " + f.Message
}

func fault(code types.FaultCode, message string) *Fault {
	return &Fault{Code: code, Message: message}
}
