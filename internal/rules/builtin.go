package rules

import "github.com/google/uuid"

// SchemaVersion is bumped whenever the built-in set changes. Stores holding
// an older version have their rule list replaced by [Defaults].
const SchemaVersion = 7

// Built-in rule names.
const (
	NameTranslate    = "🌐 Translate to English"
	NameCleanEnglish = "✏️ Clean English"
	NameCleanSpanish = "✏️ Clean Spanish"
	NamePromptBuild  = "🧠 Prompt Builder"
	NameEmail        = "📧 Professional Email"
)

// builtinNamespace derives stable IDs for built-ins so a selection survives
// a reload of the defaults.
var builtinNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://fnx.app/rules/builtin"))

// BuiltinID returns the ID a built-in rule with the given name carries.
func BuiltinID(name string) uuid.UUID {
	return uuid.NewSHA1(builtinNamespace, []byte(name))
}

const promptCleanEnglish = "You receive raw speech-to-text output that may contain mishearings, " +
	"filler words (um, uh, like, eh, este, bueno), repetitions, false starts, " +
	"or mixed-language fragments. The speaker may be talking in ANY language. " +
	"Your job: " +
	"1) Infer the speaker's intended meaning even if words are garbled or misspelled. " +
	"2) Translate to English if the input is not already in English. " +
	"3) Fix grammar, spelling, punctuation, and capitalization. " +
	"4) Remove filler words and false starts. Keep the original tone and intent. " +
	"Return ONLY the clean English text. No explanations, no quotes."

const promptCleanSpanish = "You receive raw speech-to-text output that may contain mishearings, " +
	"filler words (um, uh, like, eh, este, bueno, o sea), repetitions, false starts, " +
	"or mixed-language fragments. The speaker may be talking in ANY language. " +
	"Your job: " +
	"1) Infer the speaker's intended meaning even if words are garbled or misspelled. " +
	"2) Translate to Spanish if the input is not already in Spanish. " +
	"3) Fix grammar, spelling, punctuation, and capitalization. " +
	"4) Remove filler words and false starts. Keep the original tone and intent. " +
	"Return ONLY the clean Spanish text. No explanations, no quotes."

const promptBuilder = "You receive raw speech-to-text output from a user describing what they want an AI to do. " +
	"The input may be in ANY language and may contain mishearings, filler words, " +
	"repetitions, or incomplete sentences. " +
	"Your job: " +
	"1) Infer the user's true intent even if the transcription is messy. " +
	"2) Rewrite it as a clear, specific, high-quality prompt in English. " +
	"3) Make the task explicit. Add constraints or output format if implied. " +
	"4) Keep it concise, no fluff, no meta-commentary. " +
	"Return ONLY the final prompt. No explanations, no quotes, no preamble."

const promptEmail = "You receive raw speech-to-text output from a user describing what they want to communicate via email. " +
	"The input may be in ANY language and may contain mishearings, filler words, " +
	"repetitions, or rambling thoughts. " +
	"Your job: " +
	"1) Infer what the user actually wants to say even if the transcription is messy. " +
	"2) Write a concise, professional email body in English following this structure: " +
	"--- Template --- " +
	"Hi [Name / Team], " +
	"[Opening line: context or reason for writing, 1 sentence] " +
	"[Body: key message, details, or request, 2-4 sentences max] " +
	"[Closing line: next step, call to action, or courtesy, 1 sentence] " +
	"Best regards, " +
	"[Leave blank for the user to fill] " +
	"--- End Template --- " +
	"3) Match the implied formality level. Use \"Dear\" for formal, \"Hi/Hey\" for casual. " +
	"4) Remove any filler, repetition, or off-topic tangents. " +
	"5) Keep it short. Most professional emails should be 4-8 lines max. " +
	"Return ONLY the email text. No subject line, no explanations, no quotes."

// Defaults returns a fresh copy of the built-in rules in display order.
func Defaults() []Rule {
	return []Rule{
		builtin(NameTranslate, "", true),
		builtin(NameCleanEnglish, promptCleanEnglish, false),
		builtin(NameCleanSpanish, promptCleanSpanish, false),
		builtin(NamePromptBuild, promptBuilder, false),
		builtin(NameEmail, promptEmail, false),
	}
}

func builtin(name, prompt string, translate bool) Rule {
	return Rule{
		ID:             BuiltinID(name),
		Name:           name,
		Prompt:         prompt,
		UseTranslation: translate,
		IsDefault:      true,
	}
}
