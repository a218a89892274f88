package library

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RegistryStore keeps the whole member collection in one CSV file. Every
// read loads the file in full and every write replaces it in full.
type RegistryStore struct {
	path     string
	photoDir string
}

// NewRegistryStore returns a store for the CSV file at path with photos kept
// under photoDir. Nothing touches the disk until Initialize or Load.
func NewRegistryStore(path, photoDir string) *RegistryStore {
	return &RegistryStore{path: path, photoDir: photoDir}
}

// Path returns the location of the CSV file.
func (s *RegistryStore) Path() string { return s.path }

// PhotoDir returns the photo-asset directory.
func (s *RegistryStore) PhotoDir() string { return s.photoDir }

// Initialize creates the photo directory and the data file's parent
// directory if they are missing.
func (s *RegistryStore) Initialize() error {
	if err := os.MkdirAll(s.photoDir, 0o755); err != nil {
		return fmt.Errorf("create photo dir: %w", err)
	}
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	return nil
}

// Load returns every member in file order. A missing file is created with
// just the header row and yields an empty collection.
func (s *RegistryStore) Load() ([]*Member, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.Save(nil); err != nil {
			return nil, err
		}
		return []*Member{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	members, err := decodeMembers(f)
	if err != nil {
		var corrupt *StoreCorruptError
		if errors.As(err, &corrupt) {
			corrupt.Path = s.path
		}
		return nil, err
	}
	return members, nil
}

// Save overwrites the file with members. The previous content is replaced,
// never appended to.
func (s *RegistryStore) Save(members []*Member) error {
	var buf bytes.Buffer
	if err := EncodeMembers(&buf, members); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// maxPhotoAttempts bounds the "_2", "_3", ... suffixes tried when a photo
// name is already taken.
const maxPhotoAttempts = 100

// WritePhoto stores data as "{stem}.jpg" under the photo directory, or
// "{stem}_2.jpg", "{stem}_3.jpg" and so on when the name is taken, and
// returns the path to record in the Photo column. Existing files are never
// overwritten.
func (s *RegistryStore) WritePhoto(stem string, data []byte) (string, error) {
	for n := 1; n <= maxPhotoAttempts; n++ {
		name := stem + ".jpg"
		if n > 1 {
			name = fmt.Sprintf("%s_%d.jpg", stem, n)
		}
		p := filepath.Join(s.photoDir, name)

		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("write photo: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(p)
			return "", fmt.Errorf("write photo: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(p)
			return "", fmt.Errorf("close photo: %w", err)
		}
		return p, nil
	}
	return "", fmt.Errorf("write photo: no free name for %s after %d attempts", stem, maxPhotoAttempts)
}

// PhotoExists reports whether m has a photo path that points at a file.
func PhotoExists(m *Member) bool {
	if m.Photo == "" {
		return false
	}
	info, err := os.Stat(m.Photo)
	return err == nil && info.Mode().IsRegular()
}

// ---------------------------------------------------------------------------
// CSV codec
// ---------------------------------------------------------------------------

// EncodeMembers writes the header row followed by one row per member. Line
// breaks inside fields are written as LF.
func EncodeMembers(w io.Writer, members []*Member) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, m := range members {
		row := []string{
			normalizeNewlines(m.Name),
			normalizeNewlines(m.Phone),
			normalizeNewlines(m.CNIC),
			normalizeNewlines(m.Address),
			m.Photo,
			string(m.FeePaid),
			m.LastUpdated.Format(DateLayout),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// normalizeNewlines turns CRLF and lone CR into LF. encoding/csv reads a
// quoted CRLF back as LF, so only LF survives a save and load unchanged.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func decodeMembers(r io.Reader) ([]*Member, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &StoreCorruptError{Err: errors.New("missing header row")}
	}
	if err != nil {
		return nil, parseFailure(err)
	}
	for i, col := range Columns {
		if header[i] != col {
			return nil, &StoreCorruptError{Line: 1, Err: fmt.Errorf("column %d is %q, want %q", i+1, header[i], col)}
		}
	}

	members := []*Member{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseFailure(err)
		}
		line, _ := cr.FieldPos(0)

		fee, ok := ParseFeeStatus(row[5])
		if !ok {
			return nil, &StoreCorruptError{Line: line, Err: fmt.Errorf("fee paid %q is not Yes or No", row[5])}
		}
		updated, err := time.ParseInLocation(DateLayout, row[6], time.Local)
		if err != nil {
			return nil, &StoreCorruptError{Line: line, Err: fmt.Errorf("last updated: %w", err)}
		}

		members = append(members, &Member{
			Name:        row[0],
			Phone:       row[1],
			CNIC:        row[2],
			Address:     row[3],
			Photo:       row[4],
			FeePaid:     fee,
			LastUpdated: updated,
		})
	}
	AssignIDs(members)
	return members, nil
}

func parseFailure(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &StoreCorruptError{Line: pe.Line, Err: pe.Err}
	}
	return &StoreCorruptError{Err: err}
}

// ---------------------------------------------------------------------------
// Stable identifiers
// ---------------------------------------------------------------------------

var memberNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("library-members/member"))

// AssignIDs derives each member's ID from the fields fixed at registration
// plus its ordinal among identical records, so IDs survive fee updates and
// later appends.
func AssignIDs(members []*Member) {
	seen := make(map[string]int, len(members))
	for _, m := range members {
		key := strings.Join([]string{m.Name, m.Phone, m.CNIC, m.Address, m.Photo}, "\x1f")
		n := seen[key]
		seen[key] = n + 1
		m.ID = uuid.NewSHA1(memberNamespace, []byte(key+"\x1f"+strconv.Itoa(n)))
	}
}
