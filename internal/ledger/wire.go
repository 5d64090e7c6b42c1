package ledger

import "skillbadge/internal/domain"

// BadgeJSON is the wire form of a SkillBadge.
type BadgeJSON struct {
	ID             uint64  `json:"id"`
	Owner          string  `json:"owner"`
	Issuer         string  `json:"issuer"`
	SkillName      string  `json:"skillName"`
	Description    *string `json:"description,omitempty"`
	Level          *string `json:"level,omitempty"`
	Verified       bool    `json:"verified"`
	IssueTimestamp int64   `json:"issueTimestamp"`
}

func BadgeToJSON(b domain.SkillBadge) BadgeJSON {
	return BadgeJSON{
		ID:             uint64(b.ID),
		Owner:          b.Owner.String(),
		Issuer:         b.Issuer.String(),
		SkillName:      b.SkillName,
		Description:    b.Description,
		Level:          b.Level,
		Verified:       b.Verified,
		IssueTimestamp: b.IssueTimestamp,
	}
}

func (b BadgeJSON) Domain() domain.SkillBadge {
	return domain.SkillBadge{
		ID:             domain.BadgeID(b.ID),
		Owner:          domain.Principal(b.Owner),
		Issuer:         domain.Principal(b.Issuer),
		SkillName:      b.SkillName,
		Description:    b.Description,
		Level:          b.Level,
		Verified:       b.Verified,
		IssueTimestamp: b.IssueTimestamp,
	}
}

type ProfileJSON struct {
	Name         string  `json:"name"`
	Email        *string `json:"email,omitempty"`
	Organization *string `json:"organization,omitempty"`
}

func ProfileToJSON(p domain.UserProfile) ProfileJSON {
	return ProfileJSON{Name: p.Name, Email: p.Email, Organization: p.Organization}
}

func (p ProfileJSON) Domain() domain.UserProfile {
	return domain.UserProfile{Name: p.Name, Email: p.Email, Organization: p.Organization}
}

type IssueBadgeRequest struct {
	Owner       string  `json:"owner" binding:"required"`
	SkillName   string  `json:"skillName" binding:"required"`
	Description *string `json:"description,omitempty"`
	Level       *string `json:"level,omitempty"`
}

type IssueBadgeResponse struct {
	ID uint64 `json:"id"`
}

type AssignRoleRequest struct {
	User string `json:"user" binding:"required"`
	Role string `json:"role" binding:"required"`
}

type RoleResponse struct {
	Role string `json:"role"`
}

type AdminResponse struct {
	Admin bool `json:"admin"`
}

type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Secret   string `json:"secret,omitempty"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	Principal string `json:"principal"`
	ExpiresAt int64  `json:"expiresAt"`
}

type CertificateResponse struct {
	URL string `json:"url"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
