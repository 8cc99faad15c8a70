package usersync_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/geocoder89/projecthub/internal/repo/memory"
	"github.com/geocoder89/projecthub/internal/usersync"
)

// fakeDirectory answers with the function fields when set, otherwise succeeds.
type fakeDirectory struct {
	createFn func(p identity.Profile, password string) (string, error)
	updateFn func(externalID string, p identity.Profile) error
	deleteFn func(externalID string) error
	assignFn func(externalID, role string) error
	removeFn func(externalID, role string) error
	findFn   func(email string) (identity.Account, bool, error)
	getFn    func(externalID string) (identity.Account, error)
	rolesFn  func(externalID string) ([]string, error)
	ensureFn func(name string) (bool, error)
	pingErr  error
	calls    []string
}

func (f *fakeDirectory) record(op string) { f.calls = append(f.calls, op) }

func (f *fakeDirectory) CreateAccount(_ context.Context, p identity.Profile, password string) (string, error) {
	f.record("create")
	if f.createFn != nil {
		return f.createFn(p, password)
	}
	return "kc-" + p.Email, nil
}

func (f *fakeDirectory) UpdateAccount(_ context.Context, externalID string, p identity.Profile) error {
	f.record("update")
	if f.updateFn != nil {
		return f.updateFn(externalID, p)
	}
	return nil
}

func (f *fakeDirectory) DeleteAccount(_ context.Context, externalID string) error {
	f.record("delete")
	if f.deleteFn != nil {
		return f.deleteFn(externalID)
	}
	return nil
}

func (f *fakeDirectory) AssignRole(_ context.Context, externalID, role string) error {
	f.record("assign:" + role)
	if f.assignFn != nil {
		return f.assignFn(externalID, role)
	}
	return nil
}

func (f *fakeDirectory) RemoveRole(_ context.Context, externalID, role string) error {
	f.record("remove:" + role)
	if f.removeFn != nil {
		return f.removeFn(externalID, role)
	}
	return nil
}

func (f *fakeDirectory) FindByEmail(_ context.Context, email string) (identity.Account, bool, error) {
	f.record("find")
	if f.findFn != nil {
		return f.findFn(email)
	}
	return identity.Account{}, false, nil
}

func (f *fakeDirectory) GetAccount(_ context.Context, externalID string) (identity.Account, error) {
	f.record("get")
	if f.getFn != nil {
		return f.getFn(externalID)
	}
	return identity.Account{}, identity.ErrNotFound
}

func (f *fakeDirectory) ListEffectiveRoles(_ context.Context, externalID string) ([]string, error) {
	f.record("roles")
	if f.rolesFn != nil {
		return f.rolesFn(externalID)
	}
	return nil, nil
}

func (f *fakeDirectory) EnsureRole(_ context.Context, name, _ string) (bool, error) {
	f.record("ensure:" + name)
	if f.ensureFn != nil {
		return f.ensureFn(name)
	}
	return true, nil
}

func (f *fakeDirectory) Ping(context.Context) error {
	f.record("ping")
	return f.pingErr
}

type fakeBlobs struct {
	files     map[string][]byte
	uploadErr error
	deleteErr error
	deleted   []string
	n         int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{files: map[string][]byte{}}
}

func (b *fakeBlobs) Upload(_ context.Context, data []byte, filename, bucket string) (string, error) {
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	b.n++
	url := "http://rustfs.test/" + bucket + "/" + filename
	if b.n > 1 {
		url += "." + string(rune('0'+b.n))
	}
	b.files[url] = append([]byte(nil), data...)
	return url, nil
}

func (b *fakeBlobs) Download(_ context.Context, url string) ([]byte, error) {
	data, ok := b.files[url]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return data, nil
}

func (b *fakeBlobs) Delete(_ context.Context, url string) error {
	b.deleted = append(b.deleted, url)
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.files, url)
	return nil
}

type countingMetrics struct {
	outcomes map[string]int
}

func (m *countingMetrics) ObserveSync(flow, result string) {
	if m.outcomes == nil {
		m.outcomes = map[string]int{}
	}
	m.outcomes[flow+"/"+result]++
}

type fixture struct {
	store   *memory.Store
	dir     *fakeDirectory
	blobs   *fakeBlobs
	metrics *countingMetrics
	svc     *usersync.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   memory.NewStore(),
		dir:     &fakeDirectory{},
		blobs:   newFakeBlobs(),
		metrics: &countingMetrics{},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = usersync.NewService(f.store.Users(), f.dir, f.blobs, log, f.metrics)
	return f
}
