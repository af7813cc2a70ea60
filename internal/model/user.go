package model

import "time"

// User is a student who signed in with Google.
//
// GoogleSub is Google's stable subject identifier and is the upsert key; the
// email is what progress rows are attributed to.
type User struct {
	ID        string    `json:"id"`
	GoogleSub string    `json:"-"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Session is the identity shape exposed to pages and clients.
type Session struct {
	User SessionUser `json:"user"`
}

type SessionUser struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Session returns the public session view of the user.
func (u *User) Session() Session {
	return Session{User: SessionUser{Email: u.Email, Name: u.Name, Image: u.Image}}
}
