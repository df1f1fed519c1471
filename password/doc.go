// Package password implements the credential verifier: salted one-way
// digests with bcrypt (default, cost 12) or argon2id.
//
// # Output format
//
// bcrypt digests use the modular crypt format ($2a$<cost>$...). argon2id
// digests use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verify dispatches on the digest prefix, so accounts hashed under one
// algorithm keep working after the configured algorithm changes, and
// NeedsUpgrade tells the caller to rehash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. It never stores
// passwords and never logs plaintext or digests.
package password
