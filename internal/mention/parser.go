// Package mention turns a raw input line into ordered routing instructions.
//
// A line may address roles with @Name tokens. When every mention sits in one
// whitespace-separated run the line is a broadcast: each mentioned role gets
// the same body. Otherwise the line is segmented: each mention owns the text
// up to the next mention.
//
//	"@Tech @Creative tell me about AI"  -> Tech and Creative both get "tell me about AI"
//	"@Tech explain code. @Creative write story about it"
//	                                    -> Tech gets "explain code.", Creative the rest
//	"how does DNS work"                 -> the Default role gets the whole line
package mention

import (
	"regexp"
	"strings"
)

// DefaultRole receives lines that mention nobody.
const DefaultRole = "Default"

// Instruction routes one sub-message to one role. A parse result preserves
// the order mentions first appear in, which is also the order callers must
// report answers back in.
type Instruction struct {
	Role string
	Text string
}

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// Parse extracts routing instructions from a raw input line. It never fails:
// empty input, or mentions with nothing to say, degrade to an empty result.
func Parse(raw string) []Instruction {
	msg := strings.TrimSpace(raw)
	if msg == "" {
		return nil
	}

	locs := mentionPattern.FindAllStringSubmatchIndex(msg, -1)
	if len(locs) == 0 {
		return []Instruction{{Role: DefaultRole, Text: msg}}
	}

	if grouped(msg, locs) {
		return broadcast(msg, locs)
	}
	return segmented(msg, locs)
}

// grouped reports whether every mention belongs to a single run separated
// only by whitespace.
func grouped(msg string, locs [][]int) bool {
	for i := 0; i+1 < len(locs); i++ {
		if strings.TrimSpace(msg[locs[i][1]:locs[i+1][0]]) != "" {
			return false
		}
	}
	return true
}

// broadcast sends one shared body to every mention. The body is the longer
// of the text before the run and the text after it; on a tie the leading
// text wins. A run with no surrounding text routes nothing.
func broadcast(msg string, locs [][]int) []Instruction {
	before := strings.TrimSpace(msg[:locs[0][0]])
	after := strings.TrimSpace(msg[locs[len(locs)-1][1]:])

	body := before
	if len(after) > len(before) {
		body = after
	}
	if body == "" {
		return nil
	}

	out := make([]Instruction, 0, len(locs))
	for _, loc := range locs {
		out = append(out, Instruction{Role: msg[loc[2]:loc[3]], Text: body})
	}
	return out
}

// segmented gives each mention the text strictly between it and the next
// mention. Mentions left with nothing to say are dropped; the rest keep
// their original order.
func segmented(msg string, locs [][]int) []Instruction {
	var out []Instruction
	for i, loc := range locs {
		end := len(msg)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		text := strings.TrimSpace(msg[loc[1]:end])
		if text == "" {
			continue
		}
		out = append(out, Instruction{Role: msg[loc[2]:loc[3]], Text: text})
	}
	return out
}

// FormatUserTurn renders a routed user message the way it is recorded in
// history, naming the addressed role so later turns keep that context.
func FormatUserTurn(role, text string) string {
	return "[To " + role + "] " + text
}
