package resolver

import (
	"sort"
	"strings"
	"unicode"
)

// Kind classifies a token of user input.
type Kind int

const (
	KindText Kind = iota
	KindCommand
	KindMention
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindMention:
		return "mention"
	default:
		return "text"
	}
}

// Token is one piece of tokenized input.
type Token struct {
	Kind Kind
	// Name is the command name without '/' or the mention without '@'.
	Name string
	// Args holds key=value pairs of a command.
	Args map[string]string
	// Raw is the input text the token was read from.
	Raw string
}

// Tokenize splits input into a leading command (if any), mentions and text.
// A command is '/' followed by a bare word at the start of the input; its
// key=value words become Args, with double quotes allowed around values.
// A mention is '@' followed by a run of non-space characters.
func Tokenize(input string) []Token {
	var tokens []Token
	rest := strings.TrimLeftFunc(input, unicode.IsSpace)

	if name, after, ok := cutCommand(rest); ok {
		cmd := Token{Kind: KindCommand, Name: name, Args: map[string]string{}}
		var text []string
		for _, word := range splitWords(after) {
			switch {
			case isMentionWord(word):
				tokens = append(tokens, Token{Kind: KindMention, Name: word[1:], Raw: word})
			case strings.Contains(word, "=") && !strings.HasPrefix(word, "="):
				key, value, _ := strings.Cut(word, "=")
				cmd.Args[key] = unquote(value)
			default:
				text = append(text, word)
			}
		}
		cmd.Raw = strings.TrimSpace(rest)
		tokens = append([]Token{cmd}, tokens...)
		if len(text) > 0 {
			tokens = append(tokens, Token{Kind: KindText, Raw: strings.Join(text, " ")})
		}
		return tokens
	}

	var text strings.Builder
	flush := func() {
		if s := strings.TrimSpace(text.String()); s != "" {
			tokens = append(tokens, Token{Kind: KindText, Raw: s})
		}
		text.Reset()
	}
	for _, word := range strings.Fields(input) {
		if isMentionWord(word) {
			flush()
			tokens = append(tokens, Token{Kind: KindMention, Name: word[1:], Raw: word})
			continue
		}
		text.WriteString(word)
		text.WriteByte(' ')
	}
	flush()
	return tokens
}

// CommandName returns the command at the start of input, if there is one.
func CommandName(input string) (string, bool) {
	name, _, ok := cutCommand(strings.TrimLeftFunc(input, unicode.IsSpace))
	return name, ok
}

// cutCommand reports whether s starts with "/word" and returns the word and
// what follows it.
func cutCommand(s string) (name, rest string, ok bool) {
	if !strings.HasPrefix(s, "/") {
		return "", "", false
	}
	end := 1
	for end < len(s) && isNameByte(s[end]) {
		end++
	}
	if end == 1 {
		return "", "", false
	}
	if end < len(s) && !unicode.IsSpace(rune(s[end])) {
		return "", "", false
	}
	return s[1:end], s[end:], true
}

func isNameByte(b byte) bool {
	return b == '-' || b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isMentionWord(word string) bool {
	return len(word) > 1 && word[0] == '@'
}

// splitWords splits on whitespace but keeps double-quoted runs together.
func splitWords(s string) []string {
	var words []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case unicode.IsSpace(r) && !inQuote:
			if cur.Len() > 0 {
				words = append(words, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

// ExtractMentions returns the mentioned names in order of first appearance,
// duplicates collapsed. Names in known may contain spaces; at each '@' the
// longest known name that follows is taken. Otherwise the mention runs to
// the next space, minus trailing punctuation.
func ExtractMentions(input string, known []string) []string {
	candidates := append([]string(nil), known...)
	sort.SliceStable(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })

	var names []string
	seen := map[string]bool{}
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for i := 0; i < len(input); i++ {
		if input[i] != '@' || (i > 0 && !unicode.IsSpace(rune(input[i-1]))) {
			continue
		}
		after := input[i+1:]
		if name, ok := longestKnown(after, candidates); ok {
			add(name)
			i += len(name)
			continue
		}
		word := after
		if j := strings.IndexFunc(after, unicode.IsSpace); j >= 0 {
			word = after[:j]
		}
		add(strings.TrimRightFunc(word, unicode.IsPunct))
		i += len(word)
	}
	return names
}

func longestKnown(s string, candidates []string) (string, bool) {
	for _, name := range candidates {
		if name == "" || !strings.HasPrefix(s, name) {
			continue
		}
		if len(s) == len(name) {
			return name, true
		}
		next := rune(s[len(name)])
		if unicode.IsSpace(next) || unicode.IsPunct(next) {
			return name, true
		}
	}
	return "", false
}
