package httpx

// Page identifiers. Each matches a file under pages/ in the template tree.
const (
	PageLogin     = "login"
	PageDashboard = "dashboard"
	PageSignedOut = "signed_out"
	PageError     = "error"
)

// Cookies used by the provider login flow. They live only for the round
// trip to the identity provider.
const (
	oauthStateCookie    = "oauth_state"
	oauthNonceCookie    = "oauth_nonce"
	postLoginCookie     = "post_login_redirect"
	oauthCookieLifetime = 600
)
