package schema

// LastMessage returns the final message of msgs, if any.
func LastMessage(msgs []Message) (Message, bool) {
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}
