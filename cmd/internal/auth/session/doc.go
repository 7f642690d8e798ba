// Package session implements credential verification and the refresh-token
// lifecycle: login with escalating throttling, single-use refresh rotation
// with reuse detection, and logout.
//
// A refresh token is redeemable only while its database record exists. The
// record is deleted on redemption, so a second presentation of the same token
// is proof of reuse and revokes every token the user holds.
package session
