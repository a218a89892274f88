package auth

import (
	"path/filepath"
	"testing"
	"time"

	"library-members/library"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var loginAt = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func tempSessions(t *testing.T) *SessionStore {
	t.Helper()
	store, err := NewSessionStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newAuth(t *testing.T, clock *time.Time) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(tempSessions(t), "admin123", "", time.Hour)
	require.NoError(t, err)
	a.SetClock(func() time.Time { return *clock })
	return a
}

func TestSessionStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")
	store, err := NewSessionStore(path)
	require.NoError(t, err)
	sess, err := store.Create(loginAt, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Migrations are skipped on the second open and data survives.
	store, err = NewSessionStore(path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Lookup(sess.Token, loginAt.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, sess.ExpiresAt.Equal(got.ExpiresAt))
}

func TestLoginLifecycle(t *testing.T) {
	now := loginAt
	a := newAuth(t, &now)

	_, err := a.Login("wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	sess, err := a.Login("admin123")
	require.NoError(t, err)
	assert.True(t, sess.ExpiresAt.Equal(loginAt.Add(time.Hour)))

	_, err = a.Validate(sess.Token)
	require.NoError(t, err)

	require.NoError(t, a.Logout(sess))
	_, err = a.Validate(sess.Token)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// Logging out twice is harmless.
	require.NoError(t, a.Logout(sess))
}

func TestSessionExpiry(t *testing.T) {
	now := loginAt
	a := newAuth(t, &now)

	sess, err := a.Login("admin123")
	require.NoError(t, err)

	now = loginAt.Add(59 * time.Minute)
	_, err = a.Validate(sess.Token)
	require.NoError(t, err)

	now = loginAt.Add(time.Hour)
	_, err = a.Validate(sess.Token)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	n, err := a.Purge()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	now = loginAt.Add(2 * time.Hour)
	n, err = a.Purge()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUnknownTokenIsInvalid(t *testing.T) {
	now := loginAt
	a := newAuth(t, &now)
	_, err := a.Validate(uuid.New())
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestNewAuthenticatorWithHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	a, err := NewAuthenticator(tempSessions(t), "admin123", string(hash), time.Hour)
	require.NoError(t, err)

	_, err = a.Login("admin123")
	assert.ErrorIs(t, err, ErrInvalidPassword)
	_, err = a.Login("s3cret")
	assert.NoError(t, err)
}

func TestNewAuthenticatorRejectsBadConfig(t *testing.T) {
	store := tempSessions(t)

	_, err := NewAuthenticator(store, "", "", time.Hour)
	assert.Error(t, err)
	_, err = NewAuthenticator(store, "", "not-a-bcrypt-hash", time.Hour)
	assert.Error(t, err)
	_, err = NewAuthenticator(store, "admin123", "", 0)
	assert.Error(t, err)
}

func TestDashboardRequiresSession(t *testing.T) {
	now := loginAt
	a := newAuth(t, &now)

	dir := t.TempDir()
	members, err := library.NewMemberManager(library.NewRegistryStore(filepath.Join(dir, "m.csv"), filepath.Join(dir, "photos")))
	require.NoError(t, err)
	m, err := members.Register(library.RegisterRequest{Name: "Ali", Phone: "1", CNIC: "2", FeePaid: "No"})
	require.NoError(t, err)

	d := NewDashboard(a, members)

	_, err = d.List(nil)
	assert.ErrorIs(t, err, ErrSessionInvalid)
	_, err = d.MarkPaid(&Session{Token: uuid.New()}, 0)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	sess, err := a.Login("admin123")
	require.NoError(t, err)

	list, err := d.List(sess)
	require.NoError(t, err)
	require.Len(t, list, 1)

	paid, err := d.MarkPaidByID(sess, m.ID)
	require.NoError(t, err)
	assert.Equal(t, library.FeePaid, paid.FeePaid)

	report, err := d.Export(sess)
	require.NoError(t, err)
	assert.Contains(t, string(report), "Ali,1,2,,,Yes,")

	_, hasPhoto, err := d.Photo(sess, m.ID)
	require.NoError(t, err)
	assert.False(t, hasPhoto)

	require.NoError(t, a.Logout(sess))
	_, err = d.Export(sess)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}
