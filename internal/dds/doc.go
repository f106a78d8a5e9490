// Package dds is a client for the SK DigiDocService SOAP interface (DigiDocService_2_3.wsdl).
//
// Only the operations needed to sign hashcode containers are implemented. Each operation takes a typed request
// and returns a typed response.
//
// Failures are returned as *DDSError:
//   - ErrCodeTransport: the service could not be reached or did not answer with SOAP
//   - ErrCodeService: the service answered with a SOAP fault or a Status other than "OK"
//   - ErrCodeProtocol: the response could not be decoded
//
// The client does not retry. A signing session on the service is stateful and repeating a call that may have
// been applied could register a data file or a signature twice.
package dds
