package sumup

import "fmt"

// TokenResponse is the provider's refresh-token exchange response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// RefreshError carries the provider's rejection of a token exchange
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("sumup: token refresh rejected with status %d: %s", e.StatusCode, e.Body)
}

// pageLink is one entry of the links array on paginated responses
type pageLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}
