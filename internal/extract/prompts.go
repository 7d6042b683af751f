package extract

import (
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/artho/internal/domain"
)

func systemPrompt(accounts []string) string {
	var b strings.Builder
	b.WriteString("You are a financial AI agent. Extract every transaction mentioned in the user's " +
		"natural language input (Bangla or English). One message may describe several transactions.\n" +
		"Users will mention where the money is coming from or going to.\n\n")

	b.WriteString("Account Sources:\n")
	for _, name := range accounts {
		b.WriteString("- '" + name + "'\n")
	}
	b.WriteString("Default to '" + defaultAccount(accounts) + "' if no source is mentioned.\n\n")

	b.WriteString("Categorize into: ")
	cats := domain.Categories()
	for i, c := range cats {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(c))
	}
	b.WriteString(".\n")

	b.WriteString("Defaults:\n" +
		"- If it sounds like earning/salary, type is 'income'.\n" +
		"- If it's spending, type is 'expense'.\n" +
		"- amount is always a positive number.\n" +
		"- note is a short description in English.\n\n" +
		"IMPORTANT: Return a valid JSON array.\n")
	return b.String()
}

func responseSchema(accounts []string) *genai.Schema {
	cats := domain.Categories()
	catNames := make([]string, 0, len(cats))
	for _, c := range cats {
		catNames = append(catNames, string(c))
	}

	item := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"amount":     {Type: genai.TypeNumber, Description: "The numeric amount mentioned."},
			"category":   {Type: genai.TypeString, Description: "The category of the transaction.", Enum: catNames},
			"type":       {Type: genai.TypeString, Description: "expense or income", Enum: []string{string(domain.TypeExpense), string(domain.TypeIncome)}},
			"source":     {Type: genai.TypeString, Description: "One of the account sources."},
			"note":       {Type: genai.TypeString, Description: "A short descriptive note in English."},
			"confidence": {Type: genai.TypeNumber, Description: "0 to 1 confidence score."},
		},
		Required: []string{"amount", "category", "type", "note", "source"},
	}
	if len(accounts) > 0 {
		item.Properties["source"].Enum = append([]string(nil), accounts...)
	}
	return &genai.Schema{Type: genai.TypeArray, Items: item}
}
