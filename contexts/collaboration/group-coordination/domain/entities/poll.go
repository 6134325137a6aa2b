package entities

import (
	"sort"
	"time"
)

type PollVote struct {
	VoteID    string
	PollID    string
	OptionID  string
	UserID    string
	CreatedAt time.Time
}

type PollOption struct {
	OptionID string
	PollID   string
	Text     string
	Position int
	Votes    []PollVote
}

type Poll struct {
	PollID    string
	GroupID   string
	AuthorID  string
	Question  string
	Deadline  *time.Time
	Anonymous bool
	Options   []PollOption
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Poll) Option(optionID string) (PollOption, bool) {
	for _, option := range p.Options {
		if option.OptionID == optionID {
			return option, true
		}
	}
	return PollOption{}, false
}

// HasVoted reports whether userID holds a vote on any option of the poll.
func (p Poll) HasVoted(userID string) bool {
	for _, option := range p.Options {
		for _, vote := range option.Votes {
			if vote.UserID == userID {
				return true
			}
		}
	}
	return false
}

// ClosedAt reports whether the deadline has been reached at now.
func (p Poll) ClosedAt(now time.Time) bool {
	return p.Deadline != nil && !now.Before(*p.Deadline)
}

func (p Poll) TotalVotes() int {
	total := 0
	for _, option := range p.Options {
		total += len(option.Votes)
	}
	return total
}

// SortOptions restores creation order and orders votes by cast time.
func SortOptions(options []PollOption) {
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Position < options[j].Position
	})
	for idx := range options {
		votes := options[idx].Votes
		sort.SliceStable(votes, func(i, j int) bool {
			if votes[i].CreatedAt.Equal(votes[j].CreatedAt) {
				return votes[i].VoteID < votes[j].VoteID
			}
			return votes[i].CreatedAt.Before(votes[j].CreatedAt)
		})
	}
}

type OptionResult struct {
	OptionID  string
	Text      string
	VoteCount int
	Voters    []string
}

type PollResult struct {
	PollID    string
	GroupID   string
	Question  string
	Anonymous bool
	Deadline  *time.Time
	Options   []OptionResult
}
