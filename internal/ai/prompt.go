package ai

import (
	"fmt"
	"strings"
)

const editorRules = `You are a precise contract editor that strictly modifies legal documents according to user instructions.

Core requirements:
1. You MUST make ALL changes requested in the user's instructions.
2. If there are MULTIPLE instructions, implement EACH ONE separately.
3. Make ONLY the changes specified in the instructions. Do not add, remove, or modify anything else.
4. NEVER generate new legal language not present in the original document.
5. Keep the exact terminology of the original document.
6. Return the FULL modified text with ALL requested changes implemented.

Notes:
- Pay special attention to company names, addresses, dates, and monetary values.
- If an instruction says to change text from 'X' to 'Y', replace every instance of 'X' with 'Y'.
- Return only the edited text, without commentary.`

// EditPrompt builds the contract editor prompt for chunk index (0-based) of total.
func EditPrompt(chunk string, index, total int, instruction string) string {
	n := index + 1
	var b strings.Builder
	b.WriteString(editorRules)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "You are processing chunk %d of %d of a document.\n\n", n, total)
	fmt.Fprintf(&b, "Original text for chunk %d/%d:\n\"%s\"\n\n---\n", n, total, chunk)
	fmt.Fprintf(&b, "Instruction to apply to this chunk: %s\n\n", strings.TrimSpace(instruction))
	b.WriteString("Some instructions may not apply to this chunk. Return the FULL text for this chunk with ALL applicable changes implemented.")
	return b.String()
}

// mistralWrap applies the [INST] template used by mistral instruct models.
func mistralWrap(prompt string) string {
	return "<s>[INST] " + prompt + " [/INST]"
}
