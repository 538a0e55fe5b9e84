package command

import "strings"

const (
	messageIDPrefixOpen  = "[#mid:"
	messageIDPrefixClose = "] "
)

// EmbedMessageID prepends a recoverable message id to chat text so every peer
// can correlate the echoed chat and reactions to one logical message.
func EmbedMessageID(id, text string) string {
	if id == "" {
		return text
	}
	return messageIDPrefixOpen + id + messageIDPrefixClose + text
}

// ExtractMessageID returns the embedded id and the text without the prefix.
// ok is false when the text carries no well-formed prefix.
func ExtractMessageID(text string) (id, body string, ok bool) {
	if !strings.HasPrefix(text, messageIDPrefixOpen) {
		return "", text, false
	}
	rest := text[len(messageIDPrefixOpen):]
	end := strings.Index(rest, messageIDPrefixClose)
	if end <= 0 {
		return "", text, false
	}
	id = rest[:end]
	if strings.ContainsAny(id, " \n\t[]") {
		return "", text, false
	}
	return id, rest[end+len(messageIDPrefixClose):], true
}
