package pairing

import (
	"context"
	"errors"
	"testing"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/domain/mocks"
	"github.com/genricoloni/screend/internal/kvstore"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type fakeBundleCache struct {
	bundles map[string]*domain.ContentBundle
}

func (f *fakeBundleCache) PutBundle(key string, b *domain.ContentBundle) error {
	f.bundles[key] = b
	return nil
}

type fakeKiosk struct {
	enabled  bool
	password string
	err      error
}

func (f *fakeKiosk) Configure(enabled bool, password string) error {
	if f.err != nil {
		return f.err
	}
	f.enabled, f.password = enabled, password
	return nil
}

func newFixture(t *testing.T) (*Manager, *mocks.MockRemote, *kvstore.FileStore, *fakeBundleCache, *fakeKiosk) {
	t.Helper()
	ctrl := gomock.NewController(t)
	remote := mocks.NewMockRemote(ctrl)
	store, err := kvstore.New(zap.NewNop(), afero.NewMemMapFs(), "/state")
	require.NoError(t, err)
	bc := &fakeBundleCache{bundles: map[string]*domain.ContentBundle{}}
	k := &fakeKiosk{}
	return NewManager(zap.NewNop(), remote, store, bc, k), remote, store, bc, k
}

func TestValidateCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"ABC123", true},
		{"abc123", true},
		{"ABC12", false},
		{"ABC1234", false},
		{"ABC-12", false},
		{"ÀBC123", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := ValidateCode(tt.code)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, domain.IsPairingError(err))
		})
	}
}

func TestPair_MalformedCodeSkipsNetwork(t *testing.T) {
	m, _, store, _, _ := newFixture(t)

	// No EXPECT on the remote: any call fails the test
	_, err := m.Pair(context.Background(), "AB!", Options{})
	assert.True(t, domain.IsPairingError(err))
	assert.False(t, m.Paired())
	_, ok := store.Get(kvstore.KeyScreenID)
	assert.False(t, ok)
}

func TestPair_Success(t *testing.T) {
	m, remote, store, bc, k := newFixture(t)

	bundle := &domain.ContentBundle{
		Type:     domain.ContentPlaylist,
		Source:   "default",
		Playlist: &domain.Playlist{ID: "pl_1"},
	}
	remote.EXPECT().ResolveByOTP(gomock.Any(), "ABC123").Return(&domain.PairingResult{ScreenID: "scr_1", Bundle: bundle}, nil)

	res, err := m.Pair(context.Background(), " abc123 ", Options{Kiosk: true, ExitPassword: "letmeout"})
	require.NoError(t, err)
	assert.Equal(t, "scr_1", res.ScreenID)

	id, ok := kvstore.Identity(store)
	require.True(t, ok)
	assert.Equal(t, "scr_1", id.ScreenID)
	assert.Equal(t, bundle.Fingerprint(), kvstore.Fingerprint(store))
	assert.Contains(t, bc.bundles, "bundle:scr_1")
	assert.True(t, k.enabled)
	assert.Equal(t, "letmeout", k.password)
}

func TestPair_RejectedCodePersistsNothing(t *testing.T) {
	m, remote, store, bc, _ := newFixture(t)

	remote.EXPECT().ResolveByOTP(gomock.Any(), "USED00").
		Return(nil, &domain.PairingError{Code: "USED00", Reason: "already consumed"}).Times(1)

	_, err := m.Pair(context.Background(), "USED00", Options{})
	assert.True(t, domain.IsPairingError(err))
	assert.False(t, m.Paired())
	assert.True(t, kvstore.Fingerprint(store).IsZero())
	assert.Empty(t, bc.bundles)
}

func TestPair_RollsBackWhenKioskFails(t *testing.T) {
	m, remote, store, _, k := newFixture(t)
	k.err = errors.New("keyring locked")

	remote.EXPECT().ResolveByOTP(gomock.Any(), "ABC123").Return(&domain.PairingResult{
		ScreenID: "scr_1",
		Bundle:   &domain.ContentBundle{Type: domain.ContentPlaylist, Playlist: &domain.Playlist{ID: "p"}},
	}, nil)

	_, err := m.Pair(context.Background(), "ABC123", Options{Kiosk: true, ExitPassword: "x"})
	require.Error(t, err)
	assert.False(t, m.Paired())
	assert.True(t, kvstore.Fingerprint(store).IsZero())
}

func TestPair_PasswordWithoutKiosk(t *testing.T) {
	m, _, _, _, _ := newFixture(t)
	_, err := m.Pair(context.Background(), "ABC123", Options{ExitPassword: "x"})
	require.Error(t, err)
}
