package inference

import (
	"fmt"
	"strconv"
	"strings"
)

const systemPrompt = `You track reusable food waste for a household.
Given a food usage event and the household's current waste ledger, list the reusable
waste materials this usage produces (peels, husks, shells, grounds, bones, cooking oil, ...).

Respond with a single JSON object and nothing else:
{"items":[{"name":string,"quantity_value":number,"quantity_unit":string|null,"action":"new"|"add"}]}

Rules:
- Use "add" when the material already exists in the ledger (reuse its exact name and unit), otherwise "new".
- quantity_value is a non-negative number estimating the waste produced by this usage only.
- Return {"items":[]} when the usage produces no reusable waste.`

// BuildPrompt renders the user message for a request.
func BuildPrompt(req Request) string {
	var b strings.Builder

	ev := req.Event
	b.WriteString("Usage event:\n")
	fmt.Fprintf(&b, "- item: %s\n", strings.TrimSpace(ev.ItemName))
	fmt.Fprintf(&b, "- category: %s\n", orDash(ev.Category))
	fmt.Fprintf(&b, "- quantity: %s %s\n", formatQuantity(ev.Quantity), unitLabel(ev.Unit))

	b.WriteString("\nCurrent waste ledger:\n")
	if len(req.Ledger) == 0 {
		b.WriteString("- (empty)\n")
	}
	for _, item := range req.Ledger {
		fmt.Fprintf(&b, "- %s: %s %s\n", strings.TrimSpace(item.Name), formatQuantity(item.Quantity), unitLabel(item.Unit))
	}

	if budget := strings.TrimSpace(req.BudgetContext); budget != "" {
		fmt.Fprintf(&b, "\nHousehold food budget: %s\n", budget)
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func unitLabel(unit *string) string {
	if unit == nil || strings.TrimSpace(*unit) == "" {
		return "(no unit)"
	}
	return strings.TrimSpace(*unit)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return strings.TrimSpace(s)
}
