package conversation

import (
	"fmt"
	"time"

	"github.com/heydoc/booking-platform/internal/resolve"
	"github.com/heydoc/booking-platform/internal/session"
)

// Reply templates. French is the product language; keep the wording here so
// the engine stays free of copy.

const (
	msgGreeting = "Bonjour ! Je suis l'assistant HeyDoc. Je peux vous aider à prendre " +
		"un rendez-vous médical. Quel spécialiste souhaitez-vous consulter ?"
	msgResetDone = "Très bien, on repart de zéro. Quel spécialiste souhaitez-vous consulter ?"
	msgDeclined  = "D'accord, je ne réserve pas ce créneau. Dites-moi si vous souhaitez " +
		"chercher un autre rendez-vous."
	msgDeflection = "Je ne peux pas donner d'avis médical. En cas d'urgence appelez le 15. " +
		"Je peux en revanche vous aider à prendre rendez-vous avec un médecin."
	msgGeneral = "Je suis là pour vous aider à prendre un rendez-vous médical. " +
		"Dites-moi quel spécialiste vous souhaitez consulter, dans quelle ville et pour quand."
	msgEmptyMessage = "Je n'ai pas reçu votre message. Pouvez-vous réessayer ?"
	msgSlotTaken    = "Ce créneau vient malheureusement d'être pris."
	msgProcessError = "Désolé, un problème technique est survenu. Pouvez-vous reformuler ?"
)

var fieldPrompts = map[string][2]string{
	session.FieldSpecialist: {
		"Quel spécialiste souhaitez-vous consulter ? Par exemple un cardiologue ou un dermatologue.",
		"Je n'ai pas saisi la spécialité. Quel type de médecin cherchez-vous ?",
	},
	session.FieldLocation: {
		"Dans quelle ville souhaitez-vous consulter ?",
		"Je n'ai pas saisi la ville. Où souhaitez-vous être vu ?",
	},
	session.FieldDateRange: {
		"Pour quelle date souhaitez-vous le rendez-vous ? Vous pouvez dire par exemple \"demain\" ou \"lundi prochain\".",
		"Je n'ai pas compris la date. Pouvez-vous la préciser, par exemple \"le 17/03\" ?",
	},
}

// promptFor returns the question for a missing field. retry selects the
// reformulation used when the previous answer was not understood.
func promptFor(field string, retry bool) string {
	prompts, ok := fieldPrompts[field]
	if !ok {
		return msgGeneral
	}
	if retry {
		return prompts[1]
	}
	return prompts[0]
}

func proposalMessage(s *session.SuggestedAppointment) string {
	when := formatDateFR(s.DateTime)
	switch resolve.Stage(s.Stage) {
	case resolve.StageTeleconsultation:
		return fmt.Sprintf(
			"Aucun %s n'est disponible à %s à cette date, mais le %s propose une téléconsultation %s. Cela vous convient-il ?",
			s.Specialty, s.Location, s.DoctorName, when)
	case resolve.StageNearby:
		return fmt.Sprintf(
			"Je n'ai rien trouvé dans votre ville, mais le %s (%s) à %s peut vous recevoir %s. Cela vous convient-il ?",
			s.DoctorName, s.Specialty, s.Location, when)
	default:
		return fmt.Sprintf(
			"Le %s (%s) à %s peut vous recevoir %s. Souhaitez-vous confirmer ce rendez-vous ?",
			s.DoctorName, s.Specialty, s.Location, when)
	}
}

func confirmationMessage(appt *session.ConfirmedAppointment) string {
	mode := "au cabinet"
	if appt.Teleconsultation {
		mode = "en téléconsultation"
	}
	return fmt.Sprintf(
		"C'est noté ! Votre rendez-vous avec le %s est confirmé %s, %s. À bientôt !",
		appt.DoctorName, formatDateFR(appt.DateTime), mode)
}

func notFoundMessage(specialty, city string) string {
	return fmt.Sprintf(
		"Je n'ai trouvé aucune disponibilité pour un %s près de %s à cette date, même en téléconsultation. Souhaitez-vous essayer une autre date ?",
		specialty, city)
}

func pastDateMessage() string {
	return "Cette date est déjà passée. Pour quelle date future souhaitez-vous le rendez-vous ?"
}

var (
	frWeekdays = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
	frMonths   = [...]string{"janvier", "février", "mars", "avril", "mai", "juin",
		"juillet", "août", "septembre", "octobre", "novembre", "décembre"}
)

// formatDateFR renders "lundi 17 mars à 10h00".
func formatDateFR(t time.Time) string {
	return fmt.Sprintf("%s %d %s à %02dh%02d",
		frWeekdays[t.Weekday()], t.Day(), frMonths[t.Month()-1], t.Hour(), t.Minute())
}
