package command

import "strings"

// Prefix marks a chat message as a bot command.
const Prefix = "!"

type Verb string

const (
	VerbFollow   Verb = "follow"
	VerbUnfollow Verb = "unfollow"
	VerbList     Verb = "list"
)

// Command is a parsed chat command. Arg is empty when the user gave none.
type Command struct {
	Verb Verb
	Arg  string
}

// Parse recognises "!follow <username>", "!unfollow <username>" and "!list".
// Extra words after the first argument are ignored.
func Parse(content string) (Command, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, Prefix) {
		return Command{}, false
	}

	fields := strings.Fields(strings.TrimPrefix(content, Prefix))
	if len(fields) == 0 {
		return Command{}, false
	}

	verb := Verb(strings.ToLower(fields[0]))
	switch verb {
	case VerbFollow, VerbUnfollow, VerbList:
	default:
		return Command{}, false
	}

	cmd := Command{Verb: verb}
	if len(fields) > 1 {
		cmd.Arg = fields[1]
	}
	return cmd, true
}
