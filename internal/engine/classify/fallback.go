package classify

import (
	"strings"
	"unicode/utf8"

	"helpdesk-triage/internal/common/config"
	"helpdesk-triage/internal/engine/schema"
)

// Rules is the deterministic keyword table behind the terminal fallback
// state. Rules are evaluated in order; the first rule with a keyword hit
// wins. Given the same ticket text the fallback always produces the same
// decision - it is the one path that cannot fail.
type Rules struct {
	entries   []ruleEntry
	responses map[schema.Category]string
}

type ruleEntry struct {
	category schema.Category
	keywords []string
}

const genericResponse = "Thank you for your message. We'll assist you shortly."

// DefaultRules mirrors the keyword lists the triage system has always used.
// Deployments override them through the fallback config section.
func DefaultRules() *Rules {
	return &Rules{
		entries: []ruleEntry{
			{schema.CategoryOrder, []string{"order", "delivery", "shipping", "package", "track", "arrive", "damaged"}},
			{schema.CategoryBilling, []string{"charge", "payment", "bill", "refund", "price", "invoice", "money", "fee"}},
			{schema.CategorySubscription, []string{"subscription", "cancel", "renew", "membership", "plan"}},
			{schema.CategoryTechnical, []string{"crash", "error", "technical", "bug", "slow", "website", "app", "loading"}},
			{schema.CategoryAccount, []string{"login", "password", "account", "email", "username", "locked", "sign in"}},
		},
		responses: map[schema.Category]string{
			schema.CategoryAccount:      "I understand you're having account issues. Let me help you resolve this.",
			schema.CategoryOrder:        "I see you have an order-related concern. Let me look into this for you.",
			schema.CategoryBilling:      "I understand your billing concern. Let me check this for you.",
			schema.CategorySubscription: "I can help with your subscription question.",
			schema.CategoryTechnical:    "I understand you're experiencing technical difficulties.",
			schema.CategoryOther:        "Thank you for your message. I'll help you with this.",
		},
	}
}

// RulesFromConfig builds the rule table from configuration, falling back to
// the defaults when the config section is empty. Rules naming an unknown
// category are dropped.
func RulesFromConfig(cfg config.FallbackConfig) *Rules {
	if len(cfg.Rules) == 0 {
		return DefaultRules()
	}

	rules := &Rules{
		responses: DefaultRules().responses,
	}
	for _, r := range cfg.Rules {
		cat, ok := schema.ParseCategory(r.Category)
		if !ok {
			continue
		}
		keywords := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			keywords = append(keywords, strings.ToLower(k))
		}
		rules.entries = append(rules.entries, ruleEntry{category: cat, keywords: keywords})
	}

	if len(cfg.Responses) > 0 {
		responses := make(map[schema.Category]string, len(cfg.Responses))
		for k, v := range DefaultRules().responses {
			responses[k] = v
		}
		for k, v := range cfg.Responses {
			if cat, ok := schema.ParseCategory(k); ok {
				responses[cat] = v
			}
		}
		rules.responses = responses
	}

	return rules
}

// Categorize returns the first rule category whose keywords appear in the
// text, or OTHER.
func (r *Rules) Categorize(text string) schema.Category {
	lower := strings.ToLower(text)
	for _, entry := range r.entries {
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				return entry.category
			}
		}
	}
	return schema.CategoryOther
}

// Decide builds the complete fallback decision for a ticket.
func (r *Rules) Decide(ticket schema.TicketInput) schema.Decision {
	category := r.Categorize(ticket.Text())

	response, ok := r.responses[category]
	if !ok || strings.TrimSpace(response) == "" {
		response = genericResponse
	}

	return schema.Decision{
		Category:         category,
		Subcategory:      "general",
		Summary:          summarize(ticket.Text()),
		Response:         response,
		ConfidenceSource: schema.SourceRuleFallback,
	}
}

func summarize(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "Empty ticket received"
	}
	if len(text) > 80 {
		// Back up to a rune boundary so the cut never splits a multibyte
		// character and the summary stays valid UTF-8.
		cut := 80
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return "User reported: " + text
}
