package auth

import (
	"encoding/json"
	"regexp"
	"strings"
)

// wellKnownPath is the authorization server metadata document path (RFC 8414).
const wellKnownPath = ".well-known/oauth-authorization-server"

// Granola sends resource_metadata; RFC 9728 names the same attribute
// resource_server_metadata_uri.  Both are accepted, vendor pattern first.
var (
	reResourceMetadata = regexp.MustCompile(`resource_metadata="([^"]+)"`)
	reStandardMetadata = regexp.MustCompile(`resource_server_metadata_uri="([^"]+)"`)
)

// ParseWWWAuthenticate extracts the resource metadata URL from a challenge
// header value.  It returns an empty string if neither known attribute
// pattern is present.
func ParseWWWAuthenticate(header string) string {
	if header == "" {
		return ""
	}
	for _, re := range []*regexp.Regexp{reResourceMetadata, reStandardMetadata} {
		if m := re.FindStringSubmatch(header); m != nil {
			return m[1]
		}
	}
	return ""
}

// ResourceMetadata is the protected resource metadata document fetched from
// the challenge URL.
type ResourceMetadata struct {
	AuthorizationServers []AuthorizationServer `json:"authorization_servers"`
}

// AuthorizationServer is one entry of the authorization_servers list.  The
// document has been observed carrying both bare URL strings and objects, so
// decoding is permissive.
type AuthorizationServer struct {
	URL string
}

func (a *AuthorizationServer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.URL = s
		return nil
	}
	var obj struct {
		AuthorizationServerURL string `json:"authorization_server_url"`
		URL                    string `json:"url"`
		Issuer                 string `json:"issuer"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	switch {
	case obj.AuthorizationServerURL != "":
		a.URL = obj.AuthorizationServerURL
	case obj.URL != "":
		a.URL = obj.URL
	default:
		a.URL = obj.Issuer
	}
	return nil
}

// MetadataURL derives the server's metadata document URL, handling the
// trailing-slash ambiguity of the issuer URL.
func (a AuthorizationServer) MetadataURL() string {
	if strings.HasSuffix(a.URL, "/") {
		return a.URL + wellKnownPath
	}
	return a.URL + "/" + wellKnownPath
}

// ServerMetadata is the authorization server metadata document (RFC 8414
// subset).  ClientID is a vendor extension: some servers hand out a shared
// public client id with the metadata.
type ServerMetadata struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	RegistrationEndpoint  string `json:"registration_endpoint"`
	ClientID              string `json:"client_id"`
}

// registrationRequest is the dynamic client registration request body
// (RFC 7591 shape).  No client secret: this is a public client.
type registrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	ClientName              string   `json:"client_name"`
	SoftwareID              string   `json:"software_id"`
}

type registrationResponse struct {
	ClientID string `json:"client_id"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// message returns the most descriptive error text available, falling back
// to raw.
func (t tokenErrorResponse) message(raw string) string {
	if t.ErrorDescription != "" {
		return t.ErrorDescription
	}
	if t.Error != "" {
		return t.Error
	}
	return raw
}
