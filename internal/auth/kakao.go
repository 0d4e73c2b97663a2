package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/ecocity-backend/internal/apperror"
)

// Kakao's public endpoints.
// Docs: https://developers.kakao.com/docs/latest/en/kakaologin/rest-api
const (
	KakaoAuthURL    = "https://kauth.kakao.com/oauth/authorize"
	KakaoTokenURL   = "https://kauth.kakao.com/oauth/token"
	KakaoProfileURL = "https://kapi.kakao.com/v2/user/me"
)

// DefaultUpstreamTimeout bounds every call to Kakao. Authorization codes are
// single-use, so a failed call is never retried.
const DefaultUpstreamTimeout = 10 * time.Second

// maxProfileBytes caps how much of the profile response we read.
const maxProfileBytes = 1 << 20

// KakaoConfig holds the registered application and, for tests, endpoint
// overrides.
type KakaoConfig struct {
	ClientID     string
	ClientSecret string // optional; Kakao only requires it when enabled in the console
	RedirectURL  string
	Scopes       []string

	AuthURL    string
	TokenURL   string
	ProfileURL string

	Timeout    time.Duration
	HTTPClient *http.Client
}

// KakaoProfile is the part of /v2/user/me we use.
//
// The nickname can live in two places depending on which consent items the
// app has and on the account's age: kakao_account.profile.nickname (current)
// and properties.nickname (legacy). Both are optional, so both are pointers
// and Nickname() falls back from one to the other.
type KakaoProfile struct {
	ID           json.Number      `json:"id"`
	Properties   *KakaoProperties `json:"properties,omitempty"`
	KakaoAccount *KakaoAccount    `json:"kakao_account,omitempty"`
}

type KakaoProperties struct {
	Nickname *string `json:"nickname,omitempty"`
}

type KakaoAccount struct {
	Profile *KakaoAccountProfile `json:"profile,omitempty"`
}

type KakaoAccountProfile struct {
	Nickname *string `json:"nickname,omitempty"`
}

// KakaoID returns the stable user id as a decimal string, or "" if absent.
func (p *KakaoProfile) KakaoID() string {
	if p == nil {
		return ""
	}
	id := strings.TrimSpace(p.ID.String())
	if id == "" || id == "0" {
		return ""
	}
	return id
}

// Nickname returns the display name, or "" when the user did not consent to
// sharing it.
func (p *KakaoProfile) Nickname() string {
	if p == nil {
		return ""
	}
	if a := p.KakaoAccount; a != nil && a.Profile != nil && a.Profile.Nickname != nil {
		return *a.Profile.Nickname
	}
	if p.Properties != nil && p.Properties.Nickname != nil {
		return *p.Properties.Nickname
	}
	return ""
}

// KakaoProvider runs the authorization-code flow against Kakao.
//
// ONE CONFIG FOR BOTH STEPS:
// Kakao rejects the token exchange unless redirect_uri is byte-for-byte the
// one used in the authorize request. Both AuthURL and Exchange read it from
// the same oauth2.Config, so they cannot drift apart.
type KakaoProvider struct {
	config     *oauth2.Config
	profileURL string
	timeout    time.Duration
	httpClient *http.Client
}

// NewKakaoProvider builds the provider. Missing credentials are not an error
// here; Configured reports them per request so the server still starts.
func NewKakaoProvider(cfg KakaoConfig) *KakaoProvider {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = KakaoAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = KakaoTokenURL
	}
	profileURL := cfg.ProfileURL
	if profileURL == "" {
		profileURL = KakaoProfileURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"profile_nickname"}
	}

	return &KakaoProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: profileURL,
		timeout:    timeout,
		httpClient: client,
	}
}

// Configured returns a configuration error if the app is not registered.
func (p *KakaoProvider) Configured() error {
	var missing []string
	if p.config.ClientID == "" {
		missing = append(missing, "KAKAO_CLIENT_ID")
	}
	if p.config.RedirectURL == "" {
		missing = append(missing, "KAKAO_REDIRECT_URL")
	}
	if len(missing) > 0 {
		return apperror.NotConfigured(
			"kakao login is not configured: set " + strings.Join(missing, " and "))
	}
	return nil
}

// AuthURL returns the authorize URL. It carries response_type=code,
// client_id, redirect_uri, scope and state.
func (p *KakaoProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades the authorization code for a Kakao profile.
//
// Steps:
//  1. POST the code to the token endpoint (oauth2 library).
//  2. GET /v2/user/me with the access token as a bearer credential.
//  3. Decode the profile and require a user id.
//
// Every failure comes back as apperror.ErrUpstream with Kakao's raw payload
// in Detail.
func (p *KakaoProvider) Exchange(ctx context.Context, code string) (*KakaoProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// oauth2 picks its HTTP client out of the context. The client is a
	// per-call copy so the recorder only ever sees this exchange.
	rec := &bodyRecorder{base: p.httpClient.Transport}
	tokenClient := *p.httpClient
	tokenClient.Transport = rec
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &tokenClient)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, apperror.Upstream("kakao token exchange failed", string(re.Body))
		}
		// A 2xx answer without access_token is not a RetrieveError; the
		// recorded body is the only copy of what Kakao said.
		if len(rec.body) > 0 {
			return nil, apperror.Upstream("kakao token exchange failed", string(rec.body))
		}
		return nil, apperror.Upstream("kakao token exchange failed", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building kakao profile request: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperror.Upstream("kakao profile request failed", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, apperror.Upstream("kakao profile request failed", err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperror.Upstream(
			fmt.Sprintf("kakao profile request returned status %d", resp.StatusCode), string(body))
	}

	var profile KakaoProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, apperror.Upstream("kakao profile response is not valid JSON", err.Error())
	}
	if profile.KakaoID() == "" {
		return nil, apperror.Upstream("kakao profile has no user id", string(body))
	}

	return &profile, nil
}

// bodyRecorder keeps the token endpoint's response body so Exchange can report
// it when oauth2 discards it.
type bodyRecorder struct {
	base http.RoundTripper
	body []byte
}

func (r *bodyRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := r.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, err
	}
	r.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
