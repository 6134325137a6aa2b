package entities

import (
	"sort"
	"time"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

// User is the read-only directory projection of an account.
type User struct {
	UserID   string
	Username string
}

type Membership struct {
	GroupID  string
	UserID   string
	Role     Role
	JoinedAt time.Time
}

func (m Membership) IsAdmin() bool {
	return m.Role == RoleAdmin
}

type Group struct {
	GroupID     string
	Name        string
	Description string
	Visibility  Visibility
	CreatedBy   string
	Memberships []Membership
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MembershipOf returns the membership held by userID, if any.
func (g Group) MembershipOf(userID string) (Membership, bool) {
	for _, membership := range g.Memberships {
		if membership.UserID == userID {
			return membership, true
		}
	}
	return Membership{}, false
}

func (g Group) AdminCount() int {
	count := 0
	for _, membership := range g.Memberships {
		if membership.IsAdmin() {
			count++
		}
	}
	return count
}

// SortMemberships orders memberships by join time, then user id.
func SortMemberships(items []Membership) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].JoinedAt.Equal(items[j].JoinedAt) {
			return items[i].UserID < items[j].UserID
		}
		return items[i].JoinedAt.Before(items[j].JoinedAt)
	})
}
