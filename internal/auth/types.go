package auth

import "time"

// Account is the external view of a stored user. It never carries the
// password hash.
type Account struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Roles     []Role     `json:"roles"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedBy string     `json:"createdBy,omitempty"`
}

func (a Account) HasRole(r Role) bool {
	return HasRole(a.Roles, r)
}

// PrimaryRole is the single role shown where only one fits: super_admin if
// held, otherwise the first role.
func (a Account) PrimaryRole() Role {
	for _, r := range a.Roles {
		if r == RoleSuperAdmin {
			return r
		}
	}
	if len(a.Roles) == 0 {
		return ""
	}
	return a.Roles[0]
}

// NewAccount is the input to Directory.Create. ID is optional.
type NewAccount struct {
	ID        string   `json:"id,omitempty"`
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	Password  string   `json:"password"`
	Roles     []string `json:"roles"`
	CreatedBy string   `json:"-"`
}

// AccountUpdate is a partial update; nil fields are left unchanged.
type AccountUpdate struct {
	Email    *string  `json:"email,omitempty"`
	Name     *string  `json:"name,omitempty"`
	Password *string  `json:"password,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	IsActive *bool    `json:"isActive,omitempty"`
}

type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionView is a session without its token, for listings.
type SessionView struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s Session) View() SessionView {
	return SessionView{
		ID:        s.ID,
		AccountID: s.AccountID,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

type LoginResult struct {
	Token     string    `json:"-"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Account   Account   `json:"admin"`
}

// Principal is an authenticated caller.
type Principal struct {
	Account Account
	Session Session
}
