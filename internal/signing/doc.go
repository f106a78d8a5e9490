/*
Package signing implements the hashcode signing workflow on top of DigiDocService.

A signing session binds an uploaded container to a DigiDocService session (the Sesscode) and to an upload
directory that keeps the original container and the data file bodies. Only digests are sent to the service:

	upload ─► container.Parse ─► container.ToHashcodeForm ─► StartSession / AddDataFile
	        ─► PrepareSignature ─► (signer) ─► FinalizeSignature
	        ─► GetSignedDoc ─► container.ToFullForm (bodies from the upload directory)

Sessions move through the states

	NoSession → SessionStarted → DataFilesRegistered → SignaturePrepared → SignatureFinalized → SessionClosed

A failed DigiDocService call never changes the session: the session record and the store are only updated after
the service accepted the operation. Once a session is closed every operation on it fails with a
no_active_session error.

Session records are kept in a Store (see package sessionstore). Sessions that are never closed are removed by
SweepExpired, which the server runs periodically.
*/
package signing
