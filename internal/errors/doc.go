// Package errors defines the error taxonomy shared by every ksm component.
//
// Components wrap these sentinels with fmt.Errorf("%w: ...") so callers can
// classify failures with errors.Is. Validation and configuration errors are
// always raised before any device, filesystem or key file is touched.
package errors
