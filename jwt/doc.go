// Package jwt signs and verifies the two bearer credentials of a session: the
// short-lived access token and the long-lived refresh token.
//
// Both tokens carry the user id in the "userId" claim and are told apart by
// the subject claim ("ACCESS" or "REFRESH"). Refresh tokens additionally carry
// a jti that keys the durable record in the session store. Verification pins
// the algorithm and issuer, so a token from another issuer or signed with an
// unexpected algorithm is rejected as invalid rather than expired.
package jwt
