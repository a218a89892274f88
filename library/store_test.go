package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "Name,Phone,CNIC,Address,Photo,Fee Paid,Last Updated\n"

func tempStore(t *testing.T) *RegistryStore {
	t.Helper()
	dir := t.TempDir()
	s := NewRegistryStore(filepath.Join(dir, "library_members.csv"), filepath.Join(dir, "photos"))
	require.NoError(t, s.Initialize())
	return s
}

func TestInitializeIsIdempotent(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Initialize())

	info, err := os.Stat(s.PhotoDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadMissingFileCreatesHeader(t *testing.T) {
	s := tempStore(t)

	members, err := s.Load()
	require.NoError(t, err)
	assert.NotNil(t, members)
	assert.Empty(t, members)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, header, string(data))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local)
	tests := []struct {
		name    string
		members []*Member
	}{
		{name: "empty"},
		{
			name: "plain rows",
			members: []*Member{
				{Name: "Ali", Phone: "0300-1111111", CNIC: "42101-1234567-1", Address: "Lahore St", FeePaid: FeeUnpaid, LastUpdated: day},
				{Name: "Sara", Phone: "0301-2222222", CNIC: "35202-7654321-2", Photo: "photos/Sara_20250601120000.jpg", FeePaid: FeePaid, LastUpdated: day},
			},
		},
		{
			name: "fields needing quotes",
			members: []*Member{
				{Name: `Khan, "Junior"`, Phone: "1", CNIC: "2", Address: "House 4,\nBlock B", FeePaid: FeePaid, LastUpdated: day},
			},
		},
		{
			name: "crlf address",
			members: []*Member{
				{Name: "Ali", Phone: "1", CNIC: "2", Address: "House 4\r\nBlock B\rLahore", FeePaid: FeeUnpaid, LastUpdated: day},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tempStore(t)
			require.NoError(t, s.Save(tt.members))
			first, err := os.ReadFile(s.Path())
			require.NoError(t, err)

			loaded, err := s.Load()
			require.NoError(t, err)
			require.Len(t, loaded, len(tt.members))
			for i, m := range tt.members {
				assert.Equal(t, m.Name, loaded[i].Name)
				assert.Equal(t, m.Phone, loaded[i].Phone)
				assert.Equal(t, m.CNIC, loaded[i].CNIC)
				assert.Equal(t, normalizeNewlines(m.Address), loaded[i].Address)
				assert.Equal(t, m.Photo, loaded[i].Photo)
				assert.Equal(t, m.FeePaid, loaded[i].FeePaid)
				assert.True(t, m.LastUpdated.Equal(loaded[i].LastUpdated))
			}

			require.NoError(t, s.Save(loaded))
			second, err := os.ReadFile(s.Path())
			require.NoError(t, err)
			assert.Equal(t, string(first), string(second))
		})
	}
}

func TestSaveWritesLFLineBreaks(t *testing.T) {
	s := tempStore(t)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local)
	require.NoError(t, s.Save([]*Member{
		{Name: "Ali", Phone: "1", CNIC: "2", Address: "House 4\r\nBlock B", FeePaid: FeePaid, LastUpdated: day},
	}))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, header+"Ali,1,2,\"House 4\nBlock B\",,Yes,2025-06-01\n", string(data))

	members, err := s.Load()
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "House 4\nBlock B", members[0].Address)
}

func TestWritePhotoNeverOverwrites(t *testing.T) {
	s := tempStore(t)

	first, err := s.WritePhoto("Ali_20260314092653", []byte("first"))
	require.NoError(t, err)
	second, err := s.WritePhoto("Ali_20260314092653", []byte("second"))
	require.NoError(t, err)
	third, err := s.WritePhoto("Ali_20260314092653", []byte("third"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(s.PhotoDir(), "Ali_20260314092653.jpg"), first)
	assert.Equal(t, filepath.Join(s.PhotoDir(), "Ali_20260314092653_2.jpg"), second)
	assert.Equal(t, filepath.Join(s.PhotoDir(), "Ali_20260314092653_3.jpg"), third)

	for path, want := range map[string]string{first: "first", second: "second", third: "third"} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestSaveReplacesContent(t *testing.T) {
	s := tempStore(t)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local)
	require.NoError(t, s.Save([]*Member{
		{Name: "A", Phone: "1", CNIC: "1", FeePaid: FeePaid, LastUpdated: day},
		{Name: "B", Phone: "2", CNIC: "2", FeePaid: FeePaid, LastUpdated: day},
	}))
	require.NoError(t, s.Save([]*Member{
		{Name: "C", Phone: "3", CNIC: "3", FeePaid: FeeUnpaid, LastUpdated: day},
	}))

	members, err := s.Load()
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "C", members[0].Name)
}

func TestLoadCorruptStore(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"wrong header", "Name,Phone,ID,Address,Photo,Fee Paid,Last Updated\n"},
		{"short row", header + "Ali,0300,42101\n"},
		{"bad fee", header + "Ali,0300,42101,,,Maybe,2025-06-01\n"},
		{"bad date", header + "Ali,0300,42101,,,Yes,01/06/2025\n"},
		{"bare quote", header + "Ali,0300,\"42101,,,Yes,2025-06-01\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tempStore(t)
			require.NoError(t, os.WriteFile(s.Path(), []byte(tt.content), 0o644))

			_, err := s.Load()
			require.Error(t, err)
			var corrupt *StoreCorruptError
			require.True(t, errors.As(err, &corrupt), "want StoreCorruptError, got %v", err)
			assert.Equal(t, s.Path(), corrupt.Path)
		})
	}
}

func TestAssignIDsStableAndDistinct(t *testing.T) {
	mk := func() []*Member {
		return []*Member{
			{Name: "Ali", Phone: "1", CNIC: "x"},
			{Name: "Ali", Phone: "1", CNIC: "x"},
			{Name: "Sara", Phone: "2", CNIC: "y"},
		}
	}
	a, b := mk(), mk()
	AssignIDs(a)
	AssignIDs(b)

	assert.NotEqual(t, a[0].ID, a[1].ID)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}

	// Fee state is not part of the identity.
	b[2].FeePaid = FeePaid
	b[2].LastUpdated = time.Now()
	AssignIDs(b)
	assert.Equal(t, a[2].ID, b[2].ID)
}
