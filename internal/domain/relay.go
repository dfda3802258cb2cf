package domain

// FollowResult describes what a follow request changed.
type FollowResult int

const (
	FollowAdded            FollowResult = iota // rule created, author added to the watch list
	FollowAlreadyFollowing                     // author was already watched, nothing changed
)

func (r FollowResult) String() string {
	switch r {
	case FollowAdded:
		return "added"
	case FollowAlreadyFollowing:
		return "already_following"
	default:
		return "unknown"
	}
}
