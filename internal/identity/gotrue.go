package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"vouchr.org/internal/auth"
)

const (
	defaultTimeout   = 5 * time.Second
	factorStatusDone = "verified"
	maxResponseBytes = 1 << 20
)

// GoTrue talks to a GoTrue-compatible auth server. Access tokens are HS256 JWTs verified
// locally; factor state and refresh go over HTTP.
type GoTrue struct {
	baseURL string
	apiKey  string
	secret  []byte
	client  *http.Client
	now     func() time.Time
}

var _ Provider = (*GoTrue)(nil)

// Option configures GoTrue.
type Option func(*GoTrue) error

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *GoTrue) error {
		if c != nil {
			g.client = c
		}
		return nil
	}
}

// WithClock overrides the time source used for token expiry (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(g *GoTrue) error {
		if fn != nil {
			g.now = fn
		}
		return nil
	}
}

// NewGoTrue builds the adapter. baseURL is the auth root, e.g. https://id.example.com/auth/v1.
func NewGoTrue(baseURL, apiKey, jwtSecret string, opts ...Option) (*GoTrue, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("identity: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("identity: parse base url: %w", err)
	}
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, errors.New("identity: jwt secret is required")
	}
	g := &GoTrue{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		secret:  []byte(jwtSecret),
		client:  &http.Client{Timeout: defaultTimeout},
		now:     time.Now,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

type sessionClaims struct {
	AAL         string `json:"aal"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// CurrentSession verifies the access token and maps its claims to a session.
func (g *GoTrue) CurrentSession(_ context.Context, creds Credentials) (auth.Session, error) {
	token := strings.TrimSpace(creds.AccessToken)
	if token == "" {
		if strings.TrimSpace(creds.RefreshToken) != "" {
			return auth.Session{RefreshToken: creds.RefreshToken}, ErrTokenExpired
		}
		return auth.Session{}, ErrNoSession
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return auth.Session{RefreshToken: creds.RefreshToken}, ErrTokenExpired
		}
		return auth.Session{}, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return auth.Session{}, ErrInvalidToken
	}

	sess := auth.Session{
		UserID:       claims.Subject,
		Role:         auth.ParseRole(claims.AppMetadata.Role),
		Token:        token,
		RefreshToken: creds.RefreshToken,
		AAL:          auth.ParseAAL(claims.AAL),
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

type factor struct {
	ID         string `json:"id"`
	FactorType string `json:"factor_type"`
	Status     string `json:"status"`
}

type userResponse struct {
	ID      string   `json:"id"`
	Factors []factor `json:"factors"`
}

// ListSecondFactors returns the verified factors of the session user.
func (g *GoTrue) ListSecondFactors(ctx context.Context, sess auth.Session) (Factors, error) {
	user, err := g.fetchUser(ctx, "list_factors", sess)
	if err != nil {
		return Factors{}, err
	}
	ids := verifiedFactors(user.Factors)
	return Factors{Enrolled: len(ids) > 0, FactorIDs: ids}, nil
}

// AssuranceLevel reads the current level from the token and derives the next level from
// the verified factors: a user with a verified factor can reach aal2.
func (g *GoTrue) AssuranceLevel(ctx context.Context, sess auth.Session) (Levels, error) {
	user, err := g.fetchUser(ctx, "assurance_level", sess)
	if err != nil {
		return Levels{}, err
	}
	levels := Levels{Current: auth.ParseAAL(string(sess.AAL)), Next: auth.AAL1}
	if len(verifiedFactors(user.Factors)) > 0 {
		levels.Next = auth.AAL2
	}
	return levels, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshSession exchanges a refresh token for a rotated token pair.
func (g *GoTrue) RefreshSession(ctx context.Context, refreshToken string) (auth.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return auth.Session{}, ErrNoSession
	}
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return auth.Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/token?grant_type=refresh_token", bytes.NewReader(body))
	if err != nil {
		return auth.Session{}, &ProviderError{Op: "refresh_session", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	g.decorate(req)

	var out tokenResponse
	if err := g.do(req, "refresh_session", &out); err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && (pe.StatusCode == http.StatusBadRequest || pe.StatusCode == http.StatusUnauthorized) {
			return auth.Session{}, ErrInvalidToken
		}
		return auth.Session{}, err
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return auth.Session{}, &ProviderError{Op: "refresh_session", Err: errors.New("token pair missing in response")}
	}
	return g.CurrentSession(ctx, Credentials{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken})
}

func (g *GoTrue) fetchUser(ctx context.Context, op string, sess auth.Session) (userResponse, error) {
	if sess.Token == "" {
		return userResponse{}, ErrNoSession
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/user", nil)
	if err != nil {
		return userResponse{}, &ProviderError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	g.decorate(req)

	var user userResponse
	if err := g.do(req, op, &user); err != nil {
		return userResponse{}, err
	}
	return user, nil
}

func (g *GoTrue) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("apikey", g.apiKey)
	}
}

func (g *GoTrue) do(req *http.Request, op string, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func verifiedFactors(factors []factor) []string {
	var ids []string
	for _, f := range factors {
		if strings.EqualFold(f.Status, factorStatusDone) {
			ids = append(ids, f.ID)
		}
	}
	return ids
}
