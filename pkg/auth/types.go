package auth

import (
	"encoding/json"
	"net/mail"
	"sort"
	"strings"
	"time"
)

// RoleName is one of the fixed roles
type RoleName string

const (
	RoleSuperuser RoleName = "superuser" // Passes every access check
	RoleAdmin     RoleName = "admin"
	RoleModerator RoleName = "moderator"
	RoleUser      RoleName = "user" // Assigned at registration
)

// Valid reports whether r is a known role
func (r RoleName) Valid() bool {
	switch r {
	case RoleSuperuser, RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// PermissionName is one of the fixed permissions
type PermissionName string

const (
	PermissionAll    PermissionName = "all"
	PermissionCreate PermissionName = "create"
	PermissionRead   PermissionName = "read"
	PermissionUpdate PermissionName = "update"
	PermissionDelete PermissionName = "delete"
)

// Valid reports whether p is a known permission
func (p PermissionName) Valid() bool {
	switch p {
	case PermissionAll, PermissionCreate, PermissionRead, PermissionUpdate, PermissionDelete:
		return true
	}
	return false
}

// PermissionSet is an unordered set of permissions
type PermissionSet map[PermissionName]struct{}

// NewPermissionSet builds a set from names
func NewPermissionSet(perms ...PermissionName) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set
func (s PermissionSet) Has(p PermissionName) bool {
	_, ok := s[p]
	return ok
}

// HasAny reports whether the set shares at least one permission with perms
func (s PermissionSet) HasAny(perms ...PermissionName) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Names returns the permissions in sorted order
func (s PermissionSet) Names() []PermissionName {
	names := make([]PermissionName, 0, len(s))
	for p := range s {
		names = append(names, p)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// MarshalJSON encodes the set as a sorted list
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON decodes a list of permission names
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var names []PermissionName
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewPermissionSet(names...)
	return nil
}

// Role is a named role with its permissions
type Role struct {
	ID          string        `json:"id"`
	Name        RoleName      `json:"name"`
	Permissions PermissionSet `json:"permissions"`
}

// User is a registered account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	RoleID       *string   `json:"role_id,omitempty"`
	Role         *Role     `json:"-"`
}

// RoleName returns the user's role name, or "" when no role is assigned
func (u *User) RoleName() RoleName {
	if u == nil || u.Role == nil {
		return ""
	}
	return u.Role.Name
}

// Permissions returns the user's permissions, empty when no role is assigned
func (u *User) Permissions() PermissionSet {
	if u == nil || u.Role == nil || u.Role.Permissions == nil {
		return PermissionSet{}
	}
	return u.Role.Permissions
}

// DeviceFingerprint identifies a client device. Screen and timezone are absent
// for logins that came through an identity provider.
type DeviceFingerprint struct {
	UserAgent    string  `json:"user_agent"`
	ScreenWidth  *int    `json:"screen_width,omitempty"`
	ScreenHeight *int    `json:"screen_height,omitempty"`
	Timezone     *string `json:"timezone,omitempty"`
}

// Validate checks a fingerprint supplied by a client
func (d DeviceFingerprint) Validate() error {
	if strings.TrimSpace(d.UserAgent) == "" {
		return Validationf("device_fingerprint.user_agent is required")
	}
	if d.ScreenWidth != nil && *d.ScreenWidth < 0 {
		return Validationf("device_fingerprint.screen_width must not be negative")
	}
	if d.ScreenHeight != nil && *d.ScreenHeight < 0 {
		return Validationf("device_fingerprint.screen_height must not be negative")
	}
	return nil
}

// Device is a stored fingerprint with its most recent login
type Device struct {
	ID     string `json:"-"`
	UserID string `json:"-"`
	DeviceFingerprint
	LastLogin time.Time `json:"last_login"`
}

// TokenPair is the result of every successful authentication
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Credentials is an email/password pair
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks credentials before any store access
func (c Credentials) Validate() error {
	if err := validateEmail(c.Email); err != nil {
		return err
	}
	if c.Password == "" {
		return Validationf("password is required")
	}
	return nil
}

// Registration is the input of a sign up
type Registration struct {
	Email             string            `json:"email"`
	Username          string            `json:"username"`
	Password          string            `json:"password"`
	DeviceFingerprint DeviceFingerprint `json:"device_fingerprint"`
}

// Validate checks a registration before any store access
func (r Registration) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if strings.TrimSpace(r.Username) == "" {
		return Validationf("username is required")
	}
	if len(r.Username) > 50 {
		return Validationf("username must be at most 50 characters")
	}
	if err := validatePassword(r.Password); err != nil {
		return err
	}
	return r.DeviceFingerprint.Validate()
}

// Login is a credential login from a known device
type Login struct {
	Credentials
	DeviceFingerprint DeviceFingerprint `json:"device_fingerprint"`
}

// Validate checks a login before any store access
func (l Login) Validate() error {
	if err := l.Credentials.Validate(); err != nil {
		return err
	}
	return l.DeviceFingerprint.Validate()
}

// UserUpdate is a profile change. Password fields are all present or all absent.
type UserUpdate struct {
	Username                *string `json:"username,omitempty"`
	OldPassword             *string `json:"old_password,omitempty"`
	NewPassword             *string `json:"new_password,omitempty"`
	NewPasswordConfirmation *string `json:"new_password_confirmation,omitempty"`
}

// ChangesPassword reports whether the update carries a new password
func (u UserUpdate) ChangesPassword() bool {
	return u.NewPassword != nil
}

// Validate checks the update before any store access
func (u UserUpdate) Validate() error {
	if u.Username == nil && u.OldPassword == nil && u.NewPassword == nil && u.NewPasswordConfirmation == nil {
		return Validationf("nothing to update")
	}
	if u.Username != nil {
		if strings.TrimSpace(*u.Username) == "" {
			return Validationf("username must not be empty")
		}
		if len(*u.Username) > 50 {
			return Validationf("username must be at most 50 characters")
		}
	}
	if u.OldPassword == nil && u.NewPassword != nil {
		return Validationf("old_password is required to change the password")
	}
	if u.OldPassword != nil && u.NewPassword == nil {
		return Validationf("new_password is required with old_password")
	}
	if (u.NewPassword == nil) != (u.NewPasswordConfirmation == nil) {
		return Validationf("new_password and new_password_confirmation must be provided together")
	}
	if u.NewPassword != nil {
		if *u.NewPassword != *u.NewPasswordConfirmation {
			return Validationf("passwords must match")
		}
		if err := validatePassword(*u.NewPassword); err != nil {
			return err
		}
	}
	return nil
}

// UserInfo is the public view of the current user
type UserInfo struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Role     RoleName `json:"role,omitempty"`
}

// LoginHistory lists distinct devices, most recent first
type LoginHistory struct {
	HistoricalPoints []Device `json:"historical_points"`
}

// RefreshToken is a persisted refresh token. Only the row with a nil
// SupersededAt is accepted by a refresh.
type RefreshToken struct {
	ID           string
	UserID       string
	Token        string
	CreatedAt    time.Time
	SupersededAt *time.Time
}

// ExternalIdentity is what an identity provider vouches for after a code exchange
type ExternalIdentity struct {
	Provider       string
	ProviderUserID string
	Email          string
	DisplayName    string
}

// SocialAccount links a local user to an identity provider account
type SocialAccount struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

func validateEmail(email string) error {
	if email == "" {
		return Validationf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return Validationf("email is not a valid address")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return Validationf("password is required")
	}
	if len(password) > MaxPasswordBytes {
		return Validationf("password must be at most %d bytes", MaxPasswordBytes)
	}
	return nil
}
