package domain

import (
	"strings"
	"unicode/utf8"
)

// StageRef identifies a stage the way a terminal reports it: a stable code, a free-text name, or both
type StageRef struct {
	Code string
	Name string
}

// ResolveStageKey maps a stage reference to a canonical stage key.
//
// Precedence:
//  1. exact stage code match
//  2. exact name or alias match (case-insensitive, alias groups included)
//  3. substring containment in either direction, longest alias wins
//
// A tie at any name-based step yields ErrAmbiguousAlias. An empty name never matches.
func ResolveStageKey(ref StageRef, catalog *StageCatalog) (string, error) {
	if catalog.Len() == 0 {
		return "", ErrMissingCatalog
	}

	if code := strings.TrimSpace(ref.Code); code != "" {
		for _, s := range catalog.stages {
			if strings.EqualFold(s.StageKey, code) {
				return s.StageKey, nil
			}
		}
	}

	raw := strings.ToLower(strings.TrimSpace(ref.Name))
	if raw == "" {
		return "", ErrUnresolvedStage
	}

	var exact []string
	for _, s := range catalog.stages {
		for _, n := range s.names() {
			if StageNamesMatch(n, raw) {
				exact = append(exact, s.StageKey)
				break
			}
		}
	}
	switch len(exact) {
	case 1:
		return exact[0], nil
	case 0:
	default:
		return "", ErrAmbiguousAlias
	}

	bestKey, bestLen, tie := "", 0, false
	for _, s := range catalog.stages {
		stageBest := 0
		for _, n := range s.names() {
			alias := strings.ToLower(n)
			if strings.Contains(raw, alias) || strings.Contains(alias, raw) {
				if l := utf8.RuneCountInString(alias); l > stageBest {
					stageBest = l
				}
			}
		}
		switch {
		case stageBest == 0:
		case stageBest > bestLen:
			bestKey, bestLen, tie = s.StageKey, stageBest, false
		case stageBest == bestLen:
			tie = true
		}
	}
	if bestLen == 0 {
		return "", ErrUnresolvedStage
	}
	if tie {
		return "", ErrAmbiguousAlias
	}
	return bestKey, nil
}

// StageNamesMatch reports whether two stage names are equal or belong to the same built-in alias group
func StageNamesMatch(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	if strings.EqualFold(a, b) {
		return true
	}
	return sameGroup(a, b, qualityAliases) || sameGroup(a, b, packagingAliases)
}

func sameGroup(a, b string, group []string) bool {
	var hasA, hasB bool
	for _, g := range group {
		if g == a {
			hasA = true
		}
		if g == b {
			hasB = true
		}
	}
	return hasA && hasB
}
