package notionsync

import (
	"github.com/jomei/notionapi"

	"github.com/dvloznov/artho/internal/domain"
)

// Property names of the transactions database.
const (
	PropDescription   = "Description"
	PropTransactionID = "Transaction ID"
	PropDate          = "Date"
	PropAmount        = "Amount"
	PropType          = "Type"
	PropCategory      = "Category"
	PropAccount       = "Account"
	PropRawInput      = "Raw Input"
	PropCurrency      = "Currency"
)

const currency = "BDT"

// TransactionProperties maps a ledger record to page properties.
// Description is the note, or the raw input when the note is empty.
func TransactionProperties(tx domain.Transaction) notionapi.Properties {
	title := tx.Note
	if title == "" {
		title = tx.RawInput
	}
	date := notionapi.Date(tx.Date.UTC())

	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(title),
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.ID),
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount,
		},
		PropType: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Type)},
		},
		PropCategory: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(tx.Category)},
		},
		PropCurrency: notionapi.SelectProperty{
			Select: notionapi.Option{Name: currency},
		},
	}

	if tx.Source != "" {
		props[PropAccount] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Source},
		}
	}
	if tx.RawInput != "" {
		props[PropRawInput] = notionapi.RichTextProperty{
			RichText: richText(tx.RawInput),
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// transactionID reads the Transaction ID property of a queried page.
// Returns empty string if not found.
func transactionID(page notionapi.Page) string {
	var parts []notionapi.RichText
	switch p := page.Properties[PropTransactionID].(type) {
	case *notionapi.RichTextProperty:
		parts = p.RichText
	case notionapi.RichTextProperty:
		parts = p.RichText
	}
	if len(parts) == 0 {
		return ""
	}
	if parts[0].PlainText != "" {
		return parts[0].PlainText
	}
	if parts[0].Text != nil {
		return parts[0].Text.Content
	}
	return ""
}
