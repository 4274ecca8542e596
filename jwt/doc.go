// Package jwt is the tokengate token codec: signed bearer strings in, typed
// claims out.
//
// # Design
//
// Tokens are standard JWS compact serializations signed with HS256 or
// Ed25519. Claims carry the owning subject, a per-issuance uuid, the token
// kind (access or refresh), and the registered expiry/issued-at fields.
// Decoding verifies structure and signature but leaves the expiry decision
// to the validation pipeline, which wants it as a separately attributable
// step.
//
// # What this package must NOT do
//
//   - Touch Redis or the principal provider; decode is a pure function over
//     the key material.
//   - Include key bytes or the raw token in any returned error.
package jwt
