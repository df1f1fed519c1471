// Package jwt issues and verifies the signed access/refresh token pair.
//
// Access tokens carry the account id, email and effective permission
// names. Refresh tokens carry only the account id and email and are
// signed with separate key material, so a refresh token never verifies
// as an access token and vice versa.
package jwt
