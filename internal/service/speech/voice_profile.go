package speech

import (
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultVoice is used when no voice, or an unknown one, is configured.
const DefaultVoice = openai.VoiceAlloy

var voiceAliases = map[string]openai.SpeechVoice{
	"alloy":   openai.VoiceAlloy,
	"ash":     openai.VoiceAsh,
	"coral":   openai.VoiceCoral,
	"echo":    openai.VoiceEcho,
	"fable":   openai.VoiceFable,
	"onyx":    openai.VoiceOnyx,
	"nova":    openai.VoiceNova,
	"ballad":  openai.VoiceBallad,
	"verse":   openai.VoiceVerse,
	"shimmer": openai.VoiceShimmer,

	// descriptive names
	"neutral": openai.VoiceAlloy,
	"female":  openai.VoiceNova,
	"male":    openai.VoiceOnyx,
	"warm":    openai.VoiceCoral,
	"deep":    openai.VoiceOnyx,
	"bright":  openai.VoiceShimmer,
}

// ResolveVoice maps a configured voice name onto a synthesis voice.
func ResolveVoice(name string) openai.SpeechVoice {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if voice, ok := voiceAliases[normalized]; ok {
		return voice
	}
	return DefaultVoice
}
