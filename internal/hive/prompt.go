package hive

import (
	"fmt"
	"strings"

	"github.com/thammarongsak/waibon-safe-room/internal/bootstrap"
	"github.com/thammarongsak/waibon-safe-room/internal/store"
)

// DefaultContextLines is how many prior turns a hive prompt quotes.
const DefaultContextLines = 8

// DefaultPrompt is the user turn of a run started without a prompt.
const DefaultPrompt = "เริ่มประชุม Hive"

const emptyContext = "(ว่าง)"

// ContextLine renders one prior turn for the prompt context.
func ContextLine(t store.HiveTurnData) string {
	return fmt.Sprintf("[%d] %s: %s", t.TurnNo, t.AgentName, t.Output)
}

// BuildPrompt assembles the system prompt of one hive turn. contextLines are
// oldest first; only the last n are included.
func BuildPrompt(p *store.PersonaData, contextLines []string, n int) string {
	if n <= 0 {
		n = DefaultContextLines
	}
	protocol := bootstrap.Defaults().HiveProtocol
	if hp := p.Prompts.HiveProtocol; hp != nil {
		if hp.Format != "" {
			protocol.Format = hp.Format
		}
		if len(hp.Rules) > 0 {
			protocol.Rules = hp.Rules
		}
	}

	if len(contextLines) > n {
		contextLines = contextLines[len(contextLines)-n:]
	}
	history := strings.Join(contextLines, "\n")
	if history == "" {
		history = emptyContext
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "คุณคือ %s. ตอบด้วย Hive Protocol เท่านั้น\n", p.Name)
	if traits := traitLine(p.Traits); traits != "" {
		sb.WriteString(traits)
		sb.WriteByte('\n')
	}
	if sys := p.Prompts.System(); sys != "" {
		sb.WriteString(sys)
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "\nFormat:\n%s\n\nRules:\n- %s\n\nบริบทล่าสุด:\n%s",
		protocol.Format, strings.Join(protocol.Rules, "\n- "), history)
	return sb.String()
}

func traitLine(t store.Traits) string {
	var parts []string
	for _, kv := range [][2]string{
		{"role", t.Role}, {"style", t.Style}, {"tone", t.Tone}, {"pronoun", t.Pronoun},
	} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+kv[1])
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "บุคลิก: " + strings.Join(parts, ", ")
}
