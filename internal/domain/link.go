package domain

import "strings"

// VideoIDLength is the fixed length of a YouTube video ID.
const VideoIDLength = 11

// Link is a YouTube video URL extracted from free text.
type Link string

// String returns the link as a plain string.
func (l Link) String() string {
	return string(l)
}

// linkTemplate is a recognized URL prefix followed by a video ID.
type linkTemplate struct {
	name   string
	prefix string
}

// templates are checked in order; the first one that matches wins.
var templates = []linkTemplate{
	{name: "short", prefix: "https://youtu.be/"},
	{name: "watch", prefix: "https://www.youtube.com/watch?v="},
}

// ExtractLink finds the first recognized YouTube link in line.
// The link is the template prefix plus the next VideoIDLength bytes; anything
// after the ID (query params, trailing text) is dropped. A prefix that is not
// followed by a full ID does not match.
func ExtractLink(line string) (Link, bool) {
	line = strings.TrimSpace(line)
	for _, t := range templates {
		if link, ok := t.match(line); ok {
			return link, true
		}
	}
	return "", false
}

func (t linkTemplate) match(line string) (Link, bool) {
	start := strings.Index(line, t.prefix)
	if start < 0 {
		return "", false
	}
	end := start + len(t.prefix) + VideoIDLength
	if end > len(line) {
		return "", false
	}
	return Link(line[start:end]), true
}
