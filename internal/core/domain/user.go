package domain

// Identity is the current authenticated user's snapshot, threaded
// explicitly into every component that needs to know who is acting.
type Identity struct {
	UID         UserID
	DisplayName string
	AvatarURL   string
}

func (i Identity) Participant() Participant {
	return Participant{UID: i.UID, DisplayName: i.DisplayName, AvatarURL: i.AvatarURL}
}

// AppUser is the stored account profile.
type AppUser struct {
	UID          UserID `json:"uid"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	AvatarURL    string `json:"avatarUrl"`
	PublicID     string `json:"publicId"`
	PasswordHash string `json:"-"`
}

func (u *AppUser) Identity() Identity {
	return Identity{UID: u.UID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

// FriendRequest is a pending invite shown on the requests page.
type FriendRequest struct {
	UID         UserID `json:"uid"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Friend is one row of a user's friends list.
type Friend struct {
	UID         UserID `json:"uid"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}
