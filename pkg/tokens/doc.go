// Package tokens decodes and validates the JWTs of signed authorization
// requests.
//
// A request names its tokens access_token, id_token and userinfo_token. Each
// kind has default claim requirements:
//
//	access_token    iss jti exp
//	id_token        iss aud sub iat exp
//	userinfo_token  iss aud sub
//
// Signatures are verified against an inline JWKS when signature checking is
// enabled; otherwise tokens are decoded without verification but their time
// claims are still validated.
package tokens
