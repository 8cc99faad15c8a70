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
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type KeycloakConfig struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	// HTTPClient carries both token and admin calls; defaults to a 10s client.
	HTTPClient *http.Client
}

// Keycloak talks to the admin REST API with a service-account token.
type Keycloak struct {
	baseURL string
	realm   string
	plain   *http.Client
	admin   *http.Client
}

func NewKeycloak(cfg KeycloakConfig) *Keycloak {
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", baseURL, url.PathEscape(cfg.Realm)),
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	admin := oauth2.NewClient(tokenCtx, cc.TokenSource(tokenCtx))
	admin.Timeout = base.Timeout

	return &Keycloak{
		baseURL: baseURL,
		realm:   cfg.Realm,
		plain:   base,
		admin:   admin,
	}
}

type credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type userRepresentation struct {
	ID            string       `json:"id,omitempty"`
	Username      string       `json:"username,omitempty"`
	Email         string       `json:"email"`
	FirstName     string       `json:"firstName"`
	LastName      string       `json:"lastName"`
	Enabled       *bool        `json:"enabled,omitempty"`
	EmailVerified *bool        `json:"emailVerified,omitempty"`
	Credentials   []credential `json:"credentials,omitempty"`
}

type roleRepresentation struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (k *Keycloak) adminURL(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return fmt.Sprintf("%s/admin/realms/%s/%s", k.baseURL, url.PathEscape(k.realm), strings.Join(escaped, "/"))
}

func (k *Keycloak) CreateAccount(ctx context.Context, p Profile, password string) (string, error) {
	enabled := true
	rep := userRepresentation{
		Username:      p.Email,
		Email:         p.Email,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Enabled:       &enabled,
		EmailVerified: &enabled,
		Credentials:   []credential{{Type: "password", Value: password, Temporary: false}},
	}

	resp, err := k.do(ctx, k.admin, "create_account", http.MethodPost, k.adminURL("users"), rep)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	id := ""
	if loc := resp.Header.Get("Location"); loc != "" {
		id = path.Base(loc)
	}
	if id == "" || id == "." || id == "/" {
		acc, found, err := k.FindByEmail(ctx, p.Email)
		if err != nil {
			return "", err
		}
		if !found {
			return "", &StatusError{Op: "create_account", Status: resp.StatusCode, Body: "created account has no location"}
		}
		id = acc.ID
	}

	roles := p.Roles
	if len(roles) == 0 {
		roles = []string{"USER"}
	}
	for _, role := range roles {
		// the account now exists remotely, so a failed grant must not look degradable
		if err := k.AssignRole(ctx, id, role); err != nil {
			return "", fmt.Errorf("grant role %s to new account %s: %v", role, id, err)
		}
	}

	return id, nil
}

func (k *Keycloak) UpdateAccount(ctx context.Context, externalID string, p Profile) error {
	rep := userRepresentation{
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}

	resp, err := k.do(ctx, k.admin, "update_account", http.MethodPut, k.adminURL("users", externalID), rep)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (k *Keycloak) DeleteAccount(ctx context.Context, externalID string) error {
	resp, err := k.do(ctx, k.admin, "delete_account", http.MethodDelete, k.adminURL("users", externalID), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (k *Keycloak) realmRole(ctx context.Context, name string) (roleRepresentation, error) {
	var role roleRepresentation
	err := k.getJSON(ctx, "get_role", k.adminURL("roles", name), &role)
	return role, err
}

func (k *Keycloak) AssignRole(ctx context.Context, externalID, role string) error {
	return k.changeRoleMapping(ctx, "assign_role", http.MethodPost, externalID, role)
}

func (k *Keycloak) RemoveRole(ctx context.Context, externalID, role string) error {
	return k.changeRoleMapping(ctx, "remove_role", http.MethodDelete, externalID, role)
}

func (k *Keycloak) changeRoleMapping(ctx context.Context, op, method, externalID, roleName string) error {
	role, err := k.realmRole(ctx, roleName)
	if err != nil {
		return err
	}

	resp, err := k.do(ctx, k.admin, op, method, k.adminURL("users", externalID, "role-mappings", "realm"), []roleRepresentation{role})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (k *Keycloak) FindByEmail(ctx context.Context, email string) (Account, bool, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("exact", "true")

	var accounts []Account
	if err := k.getJSON(ctx, "find_by_email", k.adminURL("users")+"?"+q.Encode(), &accounts); err != nil {
		return Account{}, false, err
	}

	for _, a := range accounts {
		if strings.EqualFold(a.Email, email) {
			return a, true, nil
		}
	}
	return Account{}, false, nil
}

func (k *Keycloak) GetAccount(ctx context.Context, externalID string) (Account, error) {
	var acc Account
	err := k.getJSON(ctx, "get_account", k.adminURL("users", externalID), &acc)
	return acc, err
}

func (k *Keycloak) ListEffectiveRoles(ctx context.Context, externalID string) ([]string, error) {
	var roles []roleRepresentation
	if err := k.getJSON(ctx, "list_roles", k.adminURL("users", externalID, "role-mappings", "realm", "composite"), &roles); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}

func (k *Keycloak) EnsureRole(ctx context.Context, name, description string) (bool, error) {
	_, err := k.realmRole(ctx, name)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	resp, err := k.do(ctx, k.admin, "create_role", http.MethodPost, k.adminURL("roles"), roleRepresentation{Name: name, Description: description})
	if err != nil {
		// lost a race with another instance
		if errors.Is(err, ErrConflict) {
			return false, nil
		}
		return false, err
	}
	resp.Body.Close()
	return true, nil
}

// Ping hits the public realm endpoint, so it checks reachability without a token.
func (k *Keycloak) Ping(ctx context.Context) error {
	_, err := k.RealmPublicKey(ctx)
	return err
}

// RealmPublicKey returns the realm signing key as a PEM block.
func (k *Keycloak) RealmPublicKey(ctx context.Context) (string, error) {
	var realm struct {
		PublicKey string `json:"public_key"`
	}

	resp, err := k.do(ctx, k.plain, "realm_info", http.MethodGet, fmt.Sprintf("%s/realms/%s", k.baseURL, url.PathEscape(k.realm)), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&realm); err != nil {
		return "", fmt.Errorf("identity realm_info: decode: %w", err)
	}
	if realm.PublicKey == "" {
		return "", errors.New("identity realm_info: realm has no public key")
	}

	return "-----BEGIN PUBLIC KEY-----\n" + realm.PublicKey + "\n-----END PUBLIC KEY-----", nil
}

func (k *Keycloak) getJSON(ctx context.Context, op, target string, out any) error {
	resp, err := k.do(ctx, k.admin, op, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("identity %s: decode: %w", op, err)
	}
	return nil
}

// do sends the request and turns every non-2xx status into an error. The caller closes the body on success.
func (k *Keycloak) do(ctx context.Context, client *http.Client, op, method, target string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("identity %s: encode: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// deadline or cancellation of the caller's context; the breaker decides what it means
			return nil, fmt.Errorf("identity %s: %w", op, ctx.Err())
		}
		return nil, classifyTransportErr(op, err)
	}

	if err := classifyStatus(op, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func classifyTransportErr(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		switch code := retrieveErr.Response.StatusCode; {
		case code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden:
			return fmt.Errorf("identity %s: token rejected: %w", op, ErrForbidden)
		case code >= 500:
			return fmt.Errorf("identity %s: token endpoint status %d: %w", op, code, ErrUnreachable)
		}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("identity %s: %w", op, err)
	}
	return fmt.Errorf("identity %s: %w: %w", op, ErrUnreachable, err)
}

func classifyStatus(op string, resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("identity %s: status %d: %w", op, code, ErrForbidden)
	case http.StatusNotFound:
		return fmt.Errorf("identity %s: %w", op, ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("identity %s: %w", op, ErrConflict)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("identity %s: status %d: %w", op, code, ErrUnreachable)
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Op: op, Status: code, Body: strings.TrimSpace(string(b))}
}
