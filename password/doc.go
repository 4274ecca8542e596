// Package password hashes and verifies login passwords with argon2id in
// PHC string format. Verification reads the parameters embedded in the
// stored hash, so parameter upgrades never invalidate existing hashes.
package password
