package model

import (
	"fmt"
	"time"
)

// UserData represents a registration record as stored in the `userdata`
// table.  Each field corresponds to a column in the database.  The
// validate tags describe the constraints enforced before any write; the
// json tags are used when the record is cached, while HTTP responses go
// through PublicView or FullView.
//
// Fields:
//
//	ID             – primary key identifier assigned by the store.
//	RegistrationID – unique business key supplied by the client.
//	Type           – free-form category label (e.g. "taco", "volunteer").
//	Name           – display name.
//	Email          – contact email address.
//	Phone          – contact phone number (no format validation).
//	CreatedAt      – timestamp of creation, never changes.
//	UpdatedAt      – timestamp of the last successful mutation.
type UserData struct {
	ID             uint64    `json:"id"`                                         // userdata.id
	RegistrationID string    `json:"registrationid" validate:"required,max=100"` // userdata.registrationid
	Type           string    `json:"type" validate:"required,max=50"`            // userdata.type
	Name           string    `json:"name" validate:"required,max=100"`           // userdata.name
	Email          string    `json:"email" validate:"required,max=254,email"`    // userdata.email
	Phone          string    `json:"phone" validate:"required,max=20"`           // userdata.phone
	CreatedAt      time.Time `json:"created_at"`                                 // userdata.created_at
	UpdatedAt      time.Time `json:"updated_at"`                                 // userdata.updated_at
}

// String renders the record as "<name> (<registrationid>)".
func (u *UserData) String() string {
	return fmt.Sprintf("%s (%s)", u.Name, u.RegistrationID)
}

// PublicView is the restricted projection returned by list, create,
// retrieve and update.  Email, phone and updated_at are withheld.
type PublicView struct {
	RegistrationID string    `json:"registrationid"`
	Type           string    `json:"type"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// FullView is returned only by the registration id lookup.
type FullView struct {
	RegistrationID string    `json:"registrationid"`
	Type           string    `json:"type"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Public projects the record to its public view.
func (u *UserData) Public() PublicView {
	return PublicView{
		RegistrationID: u.RegistrationID,
		Type:           u.Type,
		Name:           u.Name,
		CreatedAt:      u.CreatedAt,
	}
}

// Full projects the record to its full view.
func (u *UserData) Full() FullView {
	return FullView{
		RegistrationID: u.RegistrationID,
		Type:           u.Type,
		Name:           u.Name,
		Email:          u.Email,
		Phone:          u.Phone,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

// PublicList projects a slice of records, never returning nil so the
// JSON encoding is always an array.
func PublicList(items []*UserData) []PublicView {
	out := make([]PublicView, 0, len(items))
	for _, it := range items {
		out = append(out, it.Public())
	}
	return out
}
