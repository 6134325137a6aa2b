package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SaveProfileRequest struct {
	Username string `json:"username"`
}

type UserResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
}

type UpdateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
}

type GroupResponse struct {
	GroupID     string `json:"group_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	CreatedBy   string `json:"created_by"`
	MemberCount int    `json:"member_count"`
	AdminCount  int    `json:"admin_count"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type ListGroupsResponse struct {
	Items []GroupResponse `json:"items"`
}

type MemberResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

type ListMembersResponse struct {
	GroupID string           `json:"group_id"`
	Items   []MemberResponse `json:"items"`
}

type MembershipResponse struct {
	GroupID  string `json:"group_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

type ChangeRoleRequest struct {
	Role string `json:"role"`
}

type CreatePollRequest struct {
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	Anonymous bool     `json:"anonymous"`
	// Deadline is RFC3339; empty means no deadline.
	Deadline string `json:"deadline,omitempty"`
}

type UpdatePollRequest struct {
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	Anonymous bool     `json:"anonymous"`
	Deadline  string   `json:"deadline,omitempty"`
}

type VoteRequest struct {
	OptionID string `json:"option_id"`
}

type OptionResultResponse struct {
	OptionID  string   `json:"option_id"`
	Text      string   `json:"text"`
	VoteCount int      `json:"vote_count"`
	Voters    []string `json:"voters"`
}

type PollResponse struct {
	PollID     string                 `json:"poll_id"`
	GroupID    string                 `json:"group_id"`
	AuthorID   string                 `json:"author_id"`
	Question   string                 `json:"question"`
	Deadline   string                 `json:"deadline,omitempty"`
	Anonymous  bool                   `json:"anonymous"`
	Closed     bool                   `json:"closed"`
	TotalVotes int                    `json:"total_votes"`
	Options    []OptionResultResponse `json:"options"`
	CreatedAt  string                 `json:"created_at"`
	UpdatedAt  string                 `json:"updated_at"`
}

type ListPollsResponse struct {
	GroupID string         `json:"group_id"`
	Items   []PollResponse `json:"items"`
}

type PollResultResponse struct {
	PollID    string                 `json:"poll_id"`
	GroupID   string                 `json:"group_id"`
	Question  string                 `json:"question"`
	Anonymous bool                   `json:"anonymous"`
	Options   []OptionResultResponse `json:"options"`
}
