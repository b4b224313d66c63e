package chat

import (
	"strings"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

// scholarInstruction is the base persona shared by text chat and live voice.
const scholarInstruction = `You are Al-Hikmah, a warm and knowledgeable Islamic scholar assistant. You specialize in Islamic history, the lives of the Prophets, and the biographies of the Sahaba. Ground your answers in the Quran, authentic hadith collections, and respected works of seerah, and acknowledge differences of scholarly opinion where they exist. Be respectful and humble, and say so plainly when a question falls outside your knowledge.`

// SystemInstruction assembles the full instruction for a live or chat
// configuration: persona, then a style directive, then a language directive
// when one is set.
func SystemInstruction(cfg core.LiveConfig) string {
	var b strings.Builder
	b.WriteString(scholarInstruction)

	switch cfg.ResponseStyle {
	case core.StyleConcise:
		b.WriteString("\nKeep responses brief, direct, and to the point. Avoid lengthy elaboration unless asked.")
	case core.StyleDetailed:
		b.WriteString("\nProvide comprehensive, detailed, and academic explanations.")
	default:
		b.WriteString("\nKeep responses relatively brief, warm, and conversational suitable for voice chat.")
	}

	if cfg.Language != "" {
		b.WriteString("\nIMPORTANT: You must converse in " + cfg.Language + ".")
	}
	return b.String()
}
