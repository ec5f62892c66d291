package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/entrhq/planpilot/pkg/target"
)

// unknownCategory is the fallback when a card carries no title element.
const unknownCategory = "Unknown"

// parseCard reads one dashboard card. A missing or unparsable completion
// percentage disqualifies the card; everything else has a lenient default.
func parseCard(card *goquery.Selection, sel target.Selectors) (Category, error) {
	name := unknownCategory
	if title := card.Find(sel.CardTitle); title.Length() > 0 {
		if text := strings.TrimSpace(title.Text()); text != "" {
			name = text
		}
	}

	percentElem := card.Find(sel.CardPercent)
	if percentElem.Length() == 0 {
		return Category{}, fmt.Errorf("card %q has no completion percentage", name)
	}
	percent, err := parsePercent(percentElem.Text())
	if err != nil {
		return Category{}, fmt.Errorf("card %q: %w", name, err)
	}

	remaining := 0
	if remainingElem := card.Find(sel.CardRemaining); remainingElem.Length() > 0 {
		remaining = parseRemaining(remainingElem.Text())
	}

	return Category{
		Name:              name,
		CompletionPercent: percent,
		ItemsRemaining:    remaining,
	}, nil
}

// parsePercent parses the completion percentage text of a card.
func parsePercent(text string) (int, error) {
	percent, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("unparsable completion percentage %q", strings.TrimSpace(text))
	}
	return percent, nil
}

// parseRemaining parses the remaining-items label, formatted by the target
// as "(7)" or sometimes an unclosed "(7". Anything unparsable counts as 0.
func parseRemaining(text string) int {
	trimmed := strings.Trim(strings.TrimSpace(text), "()")
	remaining, err := strconv.Atoi(strings.TrimSpace(trimmed))
	if err != nil || remaining < 0 {
		return 0
	}
	return remaining
}
