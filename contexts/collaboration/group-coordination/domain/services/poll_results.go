package services

import "gatherly/contexts/collaboration/group-coordination/domain/entities"

// BuildResult projects a poll into per-option counts. Voter names are only
// disclosed for non-anonymous polls; counts are always present. Usernames
// resolve through usernames, falling back to the user id.
func BuildResult(poll entities.Poll, usernames map[string]string) entities.PollResult {
	options := append([]entities.PollOption(nil), poll.Options...)
	for idx := range options {
		options[idx].Votes = append([]entities.PollVote(nil), options[idx].Votes...)
	}
	entities.SortOptions(options)

	result := entities.PollResult{
		PollID:    poll.PollID,
		GroupID:   poll.GroupID,
		Question:  poll.Question,
		Anonymous: poll.Anonymous,
		Deadline:  poll.Deadline,
		Options:   make([]entities.OptionResult, 0, len(options)),
	}
	for _, option := range options {
		voters := []string{}
		if !poll.Anonymous {
			for _, vote := range option.Votes {
				name := usernames[vote.UserID]
				if name == "" {
					name = vote.UserID
				}
				voters = append(voters, name)
			}
		}
		result.Options = append(result.Options, entities.OptionResult{
			OptionID:  option.OptionID,
			Text:      option.Text,
			VoteCount: len(option.Votes),
			Voters:    voters,
		})
	}
	return result
}
