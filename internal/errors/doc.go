// Package errors is the registry of error codes used by the pulse client.
//
// Every failure the client reports is a *protocol.ErrorInfo with a numeric
// code. Codes received from the service and codes raised locally share one
// table, so a code always means the same thing:
//   - 40000-40999: request, credential and token errors
//   - 50000-50999: internal errors and timeouts
//   - 80000-80999: connection state errors
//   - 90000-91999: channel and presence errors
//   - 10000-10999: configuration and CLI errors (never on the wire)
//
// # Usage
//
//	err := errors.New(protocol.CodeChannelState)
//	fmt.Println(err.HRef)
//	// https://pulse.dev/docs/errors/90001
//
//	err = errors.Wrap(errors.CodeConfigInvalid, jsonErr)
//	errors.PrintError(os.Stderr, err)
package errors
