package nlu

import "strings"

// Intent is a coarse reading of what the user wants from a turn.
type Intent string

const (
	IntentBook           Intent = "book"
	IntentReset          Intent = "reset"
	IntentGreeting       Intent = "greeting"
	IntentHealthQuestion Intent = "health_question"
	IntentOther          Intent = "other"
)

var (
	resetPhrases = []string{
		"reset", "recommencer", "recommence", "on recommence",
		"nouvelle recherche", "repartir de zéro", "repartir de zero",
		"start over", "annule tout",
	}
	bookPhrases = []string{
		"rendez-vous", "rendez vous", "rdv", "consultation",
		"réserver", "reserver", "prendre un", "appointment", "book",
	}
	greetingWords = []string{
		"bonjour", "bonsoir", "salut", "coucou", "hello", "hi", "hey",
	}
	healthPhrases = []string{
		"symptôme", "symptômes", "symptome", "symptomes",
		"douleur", "douleurs", "j'ai mal", "jai mal",
		"fièvre", "fievre", "médicament", "medicament", "traitement",
		"ordonnance", "est-ce grave", "symptom", "pain", "headache",
		"migraine", "toux",
	}
	affirmativeWords = []string{
		"oui", "ouais", "ok", "d'accord", "daccord", "parfait",
		"volontiers", "confirme", "je confirme", "c'est bon", "cest bon",
		"yes", "yep", "sure", "confirm",
	}
	negativeWords = []string{
		"non", "nope", "no", "pas celui", "pas celle", "un autre",
		"une autre", "autre chose", "refuse", "je refuse", "plutôt pas",
		"plutot pas",
	}
)

// DetectIntent classifies a turn with keyword rules. Reset wins over
// everything else so a stuck user can always bail out.
func DetectIntent(text string) Intent {
	t := normalize(text)
	if t == "" {
		return IntentOther
	}
	if IsReset(text) {
		return IntentReset
	}
	if matchesAny(t, healthPhrases) {
		return IntentHealthQuestion
	}
	if matchesAny(t, bookPhrases) {
		return IntentBook
	}
	if matchesAny(t, greetingWords) {
		return IntentGreeting
	}
	return IntentOther
}

// IsReset reports whether the user asked to start over.
func IsReset(text string) bool {
	return matchesAny(normalize(text), resetPhrases)
}

// IsAffirmative reports whether the turn accepts a proposal.
func IsAffirmative(text string) bool {
	t := normalize(text)
	// A refusal that merely contains "ok" etc. must not read as a yes.
	if matchesAny(t, negativeWords) {
		return false
	}
	return matchesAny(t, affirmativeWords)
}

// IsNegative reports whether the turn declines a proposal.
func IsNegative(text string) bool {
	return matchesAny(normalize(text), negativeWords)
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// matchesAny reports whether any phrase appears in t on a word boundary.
func matchesAny(t string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(t, p) {
			return true
		}
	}
	return false
}

func containsPhrase(t, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(t[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		if (start == 0 || !isWordChar(t[start-1])) && (end == len(t) || !isWordChar(t[end])) {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 0x80
}
