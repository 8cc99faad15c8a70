package identity_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/projecthub/internal/identity"
)

// fakeKeycloak is a tiny in-memory stand-in for the realm admin API.
type fakeKeycloak struct {
	mu sync.Mutex

	users     map[string]map[string]any
	roles     map[string]bool
	userRoles map[string]map[string]bool

	tokenStatus int // non-zero forces the token endpoint to fail
	adminStatus int // non-zero forces admin endpoints to fail
	tokenCalls  int
	nextID      int
}

func newFakeKeycloak() *fakeKeycloak {
	return &fakeKeycloak{
		users:     map[string]map[string]any{},
		roles:     map[string]bool{"USER": true, "ADMIN": true},
		userRoles: map[string]map[string]bool{},
	}
}

func (f *fakeKeycloak) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := r.URL.Path

	switch {
	case p == "/realms/test/protocol/openid-connect/token":
		f.tokenCalls++
		if f.tokenStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"svc-token","token_type":"Bearer","expires_in":300}`))
		return
	case p == "/realms/test":
		_, _ = w.Write([]byte(`{"realm":"test","public_key":"MIIBIjAN"}`))
		return
	}

	if r.Header.Get("Authorization") != "Bearer svc-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.adminStatus != 0 {
		w.WriteHeader(f.adminStatus)
		_, _ = w.Write([]byte("boom"))
		return
	}

	rest := strings.TrimPrefix(p, "/admin/realms/test/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "users" && r.Method == http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, u := range f.users {
			if u["email"] == body["email"] {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		f.nextID++
		id := "kc-" + string(rune('0'+f.nextID))
		body["id"] = id
		f.users[id] = body
		w.Header().Set("Location", "http://kc/admin/realms/test/users/"+id)
		w.WriteHeader(http.StatusCreated)
	case rest == "users" && r.Method == http.MethodGet:
		email := r.URL.Query().Get("email")
		out := []map[string]any{}
		for _, u := range f.users {
			if u["email"] == email {
				out = append(out, u)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	case len(parts) == 2 && parts[0] == "users":
		u, ok := f.users[parts[1]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(u)
		case http.MethodPut:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			for k, v := range body {
				u[k] = v
			}
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			delete(f.users, parts[1])
			w.WriteHeader(http.StatusNoContent)
		}
	case len(parts) == 2 && parts[0] == "roles":
		if !f.roles[parts[1]] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "role-" + parts[1], "name": parts[1]})
	case rest == "roles" && r.Method == http.MethodPost:
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.roles[body["name"]] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.roles[body["name"]] = true
		w.WriteHeader(http.StatusCreated)
	case len(parts) >= 4 && parts[0] == "users" && parts[2] == "role-mappings":
		id := parts[1]
		if _, ok := f.users[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if f.userRoles[id] == nil {
			f.userRoles[id] = map[string]bool{}
		}
		if len(parts) == 5 && parts[4] == "composite" {
			out := []map[string]string{{"name": "default-roles-test"}, {"name": "offline_access"}}
			for role := range f.userRoles[id] {
				out = append(out, map[string]string{"name": role})
			}
			_ = json.NewEncoder(w).Encode(out)
			return
		}
		var roles []map[string]string
		_ = json.NewDecoder(r.Body).Decode(&roles)
		for _, role := range roles {
			if r.Method == http.MethodPost {
				f.userRoles[id][role["name"]] = true
			} else {
				delete(f.userRoles[id], role["name"])
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newClient(t *testing.T, fake *fakeKeycloak) *identity.Keycloak {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return identity.NewKeycloak(identity.KeycloakConfig{
		BaseURL:      srv.URL,
		Realm:        "test",
		ClientID:     "projecthub",
		ClientSecret: "secret",
		HTTPClient:   srv.Client(),
	})
}

func TestKeycloak_CreateAccountGrantsRoles(t *testing.T) {
	fake := newFakeKeycloak()
	kc := newClient(t, fake)
	ctx := context.Background()

	id, err := kc.CreateAccount(ctx, identity.Profile{Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", Roles: []string{"ADMIN"}}, "s3cretpass")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatalf("expected external id from Location header")
	}

	roles, err := kc.ListEffectiveRoles(ctx, id)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if !contains(roles, "ADMIN") {
		t.Fatalf("expected ADMIN among %v", roles)
	}

	fake.mu.Lock()
	u := fake.users[id]
	fake.mu.Unlock()
	if u["username"] != "ada@example.com" || u["enabled"] != true || u["emailVerified"] != true {
		t.Fatalf("unexpected representation: %+v", u)
	}

	if fake.tokenCalls != 1 {
		t.Fatalf("expected the service token to be reused, got %d token calls", fake.tokenCalls)
	}
}

func TestKeycloak_CreateAccountDefaultsToUserRole(t *testing.T) {
	kc := newClient(t, newFakeKeycloak())
	ctx := context.Background()

	id, err := kc.CreateAccount(ctx, identity.Profile{Email: "bob@example.com"}, "s3cretpass")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	roles, _ := kc.ListEffectiveRoles(ctx, id)
	if !contains(roles, "USER") {
		t.Fatalf("expected USER among %v", roles)
	}
}

func TestKeycloak_DuplicateEmailIsConflict(t *testing.T) {
	kc := newClient(t, newFakeKeycloak())
	ctx := context.Background()

	if _, err := kc.CreateAccount(ctx, identity.Profile{Email: "dup@example.com"}, "pw123456"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := kc.CreateAccount(ctx, identity.Profile{Email: "dup@example.com"}, "pw123456")
	if !errors.Is(err, identity.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestKeycloak_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		tokenStatus int
		adminStatus int
		want        error
	}{
		{name: "token_rejected", tokenStatus: http.StatusUnauthorized, want: identity.ErrForbidden},
		{name: "token_endpoint_down", tokenStatus: http.StatusServiceUnavailable, want: identity.ErrUnreachable},
		{name: "admin_forbidden", adminStatus: http.StatusForbidden, want: identity.ErrForbidden},
		{name: "admin_bad_gateway", adminStatus: http.StatusBadGateway, want: identity.ErrUnreachable},
		{name: "admin_gateway_timeout", adminStatus: http.StatusGatewayTimeout, want: identity.ErrUnreachable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeKeycloak()
			fake.tokenStatus = tt.tokenStatus
			fake.adminStatus = tt.adminStatus
			kc := newClient(t, fake)

			_, err := kc.CreateAccount(context.Background(), identity.Profile{Email: "x@example.com"}, "pw123456")
			if !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
		})
	}
}

func TestKeycloak_UnexpectedStatusIsStatusError(t *testing.T) {
	fake := newFakeKeycloak()
	fake.adminStatus = http.StatusInternalServerError
	kc := newClient(t, fake)

	err := kc.DeleteAccount(context.Background(), "kc-1")

	var statusErr *identity.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("want *StatusError, got %T %v", err, err)
	}
	if statusErr.Status != http.StatusInternalServerError || statusErr.Body != "boom" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
	if identity.Degradable(err) {
		t.Fatalf("a 500 must not be treated as degradable")
	}
}

func TestKeycloak_ServerDownIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	kc := identity.NewKeycloak(identity.KeycloakConfig{BaseURL: baseURL, Realm: "test", ClientID: "c", ClientSecret: "s"})

	if err := kc.Ping(context.Background()); !errors.Is(err, identity.ErrUnreachable) {
		t.Fatalf("ping: want ErrUnreachable, got %v", err)
	}
	if _, _, err := kc.FindByEmail(context.Background(), "a@b.c"); !errors.Is(err, identity.ErrUnreachable) {
		t.Fatalf("find: want ErrUnreachable, got %v", err)
	}
}

func TestKeycloak_UpdateFindDeleteAndRoles(t *testing.T) {
	fake := newFakeKeycloak()
	kc := newClient(t, fake)
	ctx := context.Background()

	id, err := kc.CreateAccount(ctx, identity.Profile{Email: "eve@example.com", FirstName: "Eve"}, "pw123456")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := kc.UpdateAccount(ctx, id, identity.Profile{Email: "eve2@example.com", FirstName: "Eve", LastName: "Adams"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	acc, found, err := kc.FindByEmail(ctx, "eve2@example.com")
	if err != nil || !found {
		t.Fatalf("find: found=%v err=%v", found, err)
	}
	if acc.ID != id || acc.LastName != "Adams" {
		t.Fatalf("unexpected account: %+v", acc)
	}

	if err := kc.AssignRole(ctx, id, "ADMIN"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := kc.RemoveRole(ctx, id, "USER"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	roles, _ := kc.ListEffectiveRoles(ctx, id)
	if !contains(roles, "ADMIN") || contains(roles, "USER") {
		t.Fatalf("unexpected roles %v", roles)
	}

	if err := kc.AssignRole(ctx, id, "GHOST"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("unknown role: want ErrNotFound, got %v", err)
	}

	if err := kc.DeleteAccount(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := kc.GetAccount(ctx, id); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("get after delete: want ErrNotFound, got %v", err)
	}
}

func TestKeycloak_EnsureRoleIsIdempotent(t *testing.T) {
	kc := newClient(t, newFakeKeycloak())
	ctx := context.Background()

	created, err := kc.EnsureRole(ctx, "AUDITOR", "read only")
	if err != nil || !created {
		t.Fatalf("first ensure: created=%v err=%v", created, err)
	}
	created, err = kc.EnsureRole(ctx, "AUDITOR", "read only")
	if err != nil || created {
		t.Fatalf("second ensure: created=%v err=%v", created, err)
	}
}

func TestKeycloak_RealmPublicKeyIsPEM(t *testing.T) {
	kc := newClient(t, newFakeKeycloak())

	pem, err := kc.RealmPublicKey(context.Background())
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if !strings.HasPrefix(pem, "-----BEGIN PUBLIC KEY-----\nMIIBIjAN") {
		t.Fatalf("unexpected pem %q", pem)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestKeycloak_CallerGivingUpLeavesCircuitClosed(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/protocol/openid-connect/token") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"t","token_type":"Bearer","expires_in":300}`))
			return
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	kc := identity.NewKeycloak(identity.KeycloakConfig{
		BaseURL:      srv.URL,
		Realm:        "test",
		ClientID:     "projecthub",
		ClientSecret: "secret",
		HTTPClient:   srv.Client(),
	})
	b := identity.NewBreaker(kc, identity.BreakerConfig{Timeout: 5 * time.Second, FailureThreshold: 2, Cooldown: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		err := b.UpdateAccount(ctx, "kc-1", identity.Profile{Email: "a@example.com"})
		cancel()

		if err == nil || identity.Degradable(err) {
			t.Fatalf("call %d: want a non-degradable caller error, got %v", i, err)
		}
	}

	if got := b.State(); got != "closed" {
		t.Fatalf("breaker state after caller-side timeouts: %s", got)
	}
}
