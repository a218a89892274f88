package auth

import (
	"library-members/library"

	"github.com/google/uuid"
)

// Dashboard is the admin view over the registry. Every call needs a live
// session; the registry itself knows nothing about sessions.
type Dashboard struct {
	auth    *Authenticator
	members *library.MemberManager
}

// NewDashboard gates members behind sessions issued by auth.
func NewDashboard(auth *Authenticator, members *library.MemberManager) *Dashboard {
	return &Dashboard{auth: auth, members: members}
}

func (d *Dashboard) check(sess *Session) error {
	if sess == nil {
		return ErrSessionInvalid
	}
	_, err := d.auth.Validate(sess.Token)
	return err
}

// List returns every member in registry order.
func (d *Dashboard) List(sess *Session) ([]*library.Member, error) {
	if err := d.check(sess); err != nil {
		return nil, err
	}
	return d.members.ListMembers()
}

// MarkPaid marks the fee of the member at index as paid.
func (d *Dashboard) MarkPaid(sess *Session, index int) (*library.Member, error) {
	if err := d.check(sess); err != nil {
		return nil, err
	}
	return d.members.MarkFeePaid(index)
}

// MarkPaidByID marks the fee of the member with id as paid.
func (d *Dashboard) MarkPaidByID(sess *Session, id uuid.UUID) (*library.Member, error) {
	if err := d.check(sess); err != nil {
		return nil, err
	}
	return d.members.MarkFeePaidByID(id)
}

// Export returns the registry as CSV for download.
func (d *Dashboard) Export(sess *Session) ([]byte, error) {
	if err := d.check(sess); err != nil {
		return nil, err
	}
	return d.members.ExportReport()
}

// Photo returns the member's photo path when the file exists.
func (d *Dashboard) Photo(sess *Session, id uuid.UUID) (string, bool, error) {
	if err := d.check(sess); err != nil {
		return "", false, err
	}
	_, m, err := d.members.GetMember(id)
	if err != nil {
		return "", false, err
	}
	return m.Photo, library.PhotoExists(m), nil
}
