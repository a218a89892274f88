package library

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PhotoTimestampLayout is the second-resolution stamp in photo filenames.
const PhotoTimestampLayout = "20060102150405"

// MemberManager is a thin façade over the RegistryStore holding the
// registration and fee-tracking use cases. Each call loads the collection,
// mutates it in memory and saves it back; nothing is locked, so concurrent
// writers follow last-writer-wins.
type MemberManager struct {
	store *RegistryStore
	now   func() time.Time
}

// NewMemberManager prepares the store directories and returns a manager.
func NewMemberManager(store *RegistryStore) (*MemberManager, error) {
	if err := store.Initialize(); err != nil {
		return nil, err
	}
	return &MemberManager{store: store, now: time.Now}, nil
}

// SetClock replaces the time source.
func (mm *MemberManager) SetClock(now func() time.Time) { mm.now = now }

// Store exposes the underlying registry store.
func (mm *MemberManager) Store() *RegistryStore { return mm.store }

// ------------------ Registration ------------------

// Register validates req, loads the registry, writes the photo if one was
// supplied, then appends the member and persists the collection. On a
// validation failure nothing is written; if the registry cannot be loaded or
// saved no photo is left behind.
func (mm *MemberManager) Register(req RegisterRequest) (*Member, error) {
	m := &Member{
		Name:    NormalizeField(req.Name),
		Phone:   NormalizeField(req.Phone),
		CNIC:    NormalizeField(req.CNIC),
		Address: NormalizeField(req.Address),
	}

	var missing []string
	if m.Name == "" {
		missing = append(missing, "name")
	}
	if m.Phone == "" {
		missing = append(missing, "phone")
	}
	if m.CNIC == "" {
		missing = append(missing, "cnic")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	m.FeePaid = FeePaid
	if sel := strings.TrimSpace(req.FeePaid); sel != "" {
		fee, ok := ParseFeeStatus(sel)
		if !ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("fee paid must be Yes or No, got %q", sel)}
		}
		m.FeePaid = fee
	}

	now := mm.now()
	m.LastUpdated = today(now)

	members, err := mm.store.Load()
	if err != nil {
		return nil, err
	}

	// The photo must be on disk before any record points at it.
	if len(req.Photo) > 0 {
		p, err := mm.store.WritePhoto(PhotoStem(m.Name, now), req.Photo)
		if err != nil {
			return nil, err
		}
		m.Photo = p
	}

	members = append(members, m)
	AssignIDs(members)
	if err := mm.store.Save(members); err != nil {
		if m.Photo != "" {
			os.Remove(m.Photo)
		}
		return nil, err
	}
	return m, nil
}

// NormalizeField trims surrounding whitespace and stores line breaks as LF,
// so the registered record is exactly what a later load returns.
func NormalizeField(s string) string {
	return strings.TrimSpace(normalizeNewlines(s))
}

// PhotoStem builds "{name}_{yyyyMMddHHmmss}" with the name made safe for use
// as a single path element.
func PhotoStem(name string, at time.Time) string {
	return SanitizeFilename(name) + "_" + at.Format(PhotoTimestampLayout)
}

// PhotoFilename is the first filename tried for a photo: PhotoStem plus ".jpg".
func PhotoFilename(name string, at time.Time) string {
	return PhotoStem(name, at) + ".jpg"
}

// SanitizeFilename replaces path separators, NUL, control characters and
// characters reserved on common file systems with '_'.
func SanitizeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return '_'
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, name)
	cleaned = strings.Trim(cleaned, " .")
	if cleaned == "" {
		return "member"
	}
	return cleaned
}

// ------------------ Fee tracking ------------------

// MarkFeePaid sets the fee of the member at index to Yes and stamps today's
// date, then rewrites the store. Repeating it only refreshes the date.
func (mm *MemberManager) MarkFeePaid(index int) (*Member, error) {
	members, err := mm.store.Load()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(members) {
		return nil, &IndexError{Index: index, Count: len(members)}
	}
	return mm.markPaid(members, index)
}

// MarkFeePaidByID is MarkFeePaid addressed by the member's stable ID, so a
// stale row index cannot hit the wrong member.
func (mm *MemberManager) MarkFeePaidByID(id uuid.UUID) (*Member, error) {
	members, err := mm.store.Load()
	if err != nil {
		return nil, err
	}
	for i, m := range members {
		if m.ID == id {
			return mm.markPaid(members, i)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
}

func (mm *MemberManager) markPaid(members []*Member, index int) (*Member, error) {
	m := members[index]
	m.FeePaid = FeePaid
	// LastUpdated never moves backwards.
	if d := today(mm.now()); d.After(m.LastUpdated) || m.LastUpdated.IsZero() {
		m.LastUpdated = d
	}
	if err := mm.store.Save(members); err != nil {
		return nil, err
	}
	return m, nil
}

// ------------------ Reads ------------------

// ListMembers returns the whole registry in insertion order.
func (mm *MemberManager) ListMembers() ([]*Member, error) {
	return mm.store.Load()
}

// GetMember looks a member up by stable ID.
func (mm *MemberManager) GetMember(id uuid.UUID) (int, *Member, error) {
	members, err := mm.store.Load()
	if err != nil {
		return -1, nil, err
	}
	for i, m := range members {
		if m.ID == id {
			return i, m, nil
		}
	}
	return -1, nil, fmt.Errorf("%w: %s", ErrMemberNotFound, id)
}

// ExportReport serializes the current registry in the store's CSV format.
func (mm *MemberManager) ExportReport() ([]byte, error) {
	members, err := mm.store.Load()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := EncodeMembers(&buf, members); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func today(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}
