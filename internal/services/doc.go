// Package services wires the external integrations of the signing server.
//
// Based on the configuration it creates:
//   - the DigiDocService SOAP client
//   - the session store (memory, PostgreSQL with goose migrations, or Redis)
//   - the optional local signing token (PKCS#12 keystore) and its JWK set
//
// and the signing.Service that uses them. Handlers only depend on Services.
package services
