package flows

// Deps groups flow dependency sets. The Engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Reissue     ReissueDeps
	SocialLogin SocialLoginDeps
	Validate    ValidateDeps
}
