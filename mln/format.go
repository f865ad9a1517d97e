package mln

import (
	"fmt"
	"strings"
)

// AtomString returns the textual form of an atom, e.g. "Friends(Anna,Bob)"
// or "Sunny" for a zero-arity predicate.
func AtomString(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ","))
}

func (l Literal) String() string {
	args := make([]string, len(l.Args))
	for i, t := range l.Args {
		args[i] = string(t)
	}
	s := AtomString(l.Name, args)
	if l.Negated {
		return "!" + s
	}
	return s
}

// ParseLiteral parses the textual form of a literal: an optional '!'
// prefix, a predicate name and a parenthesized comma-separated term list.
// This is plain deserialization of compiler output, not a logic parser.
func ParseLiteral(s string) (Literal, error) {
	s = strings.TrimSpace(s)
	var lit Literal
	if strings.HasPrefix(s, "!") {
		lit.Negated = true
		s = strings.TrimSpace(s[1:])
	}
	name, args, err := ParseAtom(s)
	if err != nil {
		return Literal{}, err
	}
	lit.Name = name
	lit.Args = make([]Term, len(args))
	for i, a := range args {
		lit.Args[i] = Term(a)
	}
	return lit, nil
}

// ParseAtom splits an atom's textual form into its predicate name and
// argument symbols.
func ParseAtom(s string) (name string, args []string, err error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open == -1 {
		if s == "" || strings.ContainsAny(s, " ,)") {
			return "", nil, fmt.Errorf("invalid atom %q", s)
		}
		return s, nil, nil
	}
	if !strings.HasSuffix(s, ")") || open == 0 {
		return "", nil, fmt.Errorf("invalid atom %q", s)
	}
	name = s[:open]
	inner := s[open+1 : len(s)-1]
	if strings.TrimSpace(inner) == "" {
		return "", nil, fmt.Errorf("invalid atom %q: empty argument list", s)
	}
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if part == "" || strings.ContainsAny(part, " ()") {
			return "", nil, fmt.Errorf("invalid atom %q", s)
		}
		args = append(args, part)
	}
	return name, args, nil
}
