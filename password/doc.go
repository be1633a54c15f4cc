// Package password verifies primary credentials for re-authentication.
//
// [Verifier] satisfies the engine's PrimaryVerifier contract: it looks up a
// user's stored Argon2id hash through a [HashSource] and compares the
// presented secret against it. Unknown users cost the same work as a wrong
// password.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// This package never stores passwords and never logs secrets or hashes.
package password
