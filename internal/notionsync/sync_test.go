package notionsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/artho/internal/domain"
)

// MockNotion keeps pages in memory and pages query results two at a time.
type MockNotion struct {
	pages      []notionapi.Page
	archived   []string
	nextID     int
	CreateFunc func(props notionapi.Properties) error
	QueryErr   error
}

func (m *MockNotion) addPage(txID string) {
	m.nextID++
	props := notionapi.Properties{}
	if txID != "" {
		props[PropTransactionID] = &notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{PlainText: txID}},
		}
	}
	m.pages = append(m.pages, notionapi.Page{ID: notionapi.ObjectID(fmt.Sprintf("page-%d", m.nextID)), Properties: props})
}

func (m *MockNotion) CreatePage(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
	if m.CreateFunc != nil {
		if err := m.CreateFunc(props); err != nil {
			return nil, err
		}
	}
	m.addPage(transactionID(notionapi.Page{Properties: props}))
	page := m.pages[len(m.pages)-1]
	return &page, nil
}

func (m *MockNotion) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	var live []notionapi.Page
	for _, p := range m.pages {
		if !p.Archived {
			live = append(live, p)
		}
	}
	start := 0
	if req.StartCursor != "" {
		fmt.Sscanf(string(req.StartCursor), "%d", &start)
	}
	end := min(start+2, len(live))
	resp := &notionapi.DatabaseQueryResponse{Results: live[start:end]}
	if end < len(live) {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor(fmt.Sprint(end))
	}
	return resp, nil
}

func (m *MockNotion) ArchivePage(ctx context.Context, pageID string) error {
	for i := range m.pages {
		if string(m.pages[i].ID) == pageID {
			m.pages[i].Archived = true
			m.archived = append(m.archived, pageID)
			return nil
		}
	}
	return errors.New("page not found")
}

func ledgerTxs() []domain.Transaction {
	return domain.DemoTransactions(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC))[:5]
}

func TestMirror_CreatesAndArchives(t *testing.T) {
	svc := &MockNotion{}
	svc.addPage("d1")      // still in ledger
	svc.addPage("deleted") // removed from ledger
	svc.addPage("")        // no id
	svc.addPage("d1")      // duplicate

	res, err := Mirror(context.Background(), svc, "db", ledgerTxs(), false)

	require.NoError(t, err)
	assert.Equal(t, Result{Created: 4, Archived: 3, Skipped: 1}, res)
	assert.ElementsMatch(t, []string{"page-2", "page-3", "page-4"}, svc.archived)

	again, err := Mirror(context.Background(), svc, "db", ledgerTxs(), false)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 5}, again, "second run is a no-op")
}

func TestMirror_DryRun(t *testing.T) {
	svc := &MockNotion{}
	svc.addPage("gone")

	res, err := Mirror(context.Background(), svc, "db", ledgerTxs(), true)

	require.NoError(t, err)
	assert.Equal(t, Result{Created: 5, Archived: 1}, res)
	assert.Len(t, svc.pages, 1)
	assert.Empty(t, svc.archived)
}

func TestMirror_PageFailuresCounted(t *testing.T) {
	svc := &MockNotion{CreateFunc: func(props notionapi.Properties) error {
		if transactionID(notionapi.Page{Properties: props}) == "d2" {
			return errors.New("rate limited")
		}
		return nil
	}}

	res, err := Mirror(context.Background(), svc, "db", ledgerTxs(), false)

	require.NoError(t, err)
	assert.Equal(t, 4, res.Created)
	assert.Equal(t, 1, res.Failed)
}

func TestMirror_QueryFailure(t *testing.T) {
	svc := &MockNotion{QueryErr: errors.New("unauthorized")}
	_, err := Mirror(context.Background(), svc, "db", ledgerTxs(), false)
	assert.Error(t, err)
}

func TestTransactionProperties(t *testing.T) {
	tx := domain.Transaction{
		ID: "t1", Amount: 250, Category: domain.CategoryFood, Type: domain.TypeExpense,
		Date: time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), Source: "BKASH", RawInput: "lunch 250",
	}

	props := TransactionProperties(tx)

	title, ok := props[PropDescription].(notionapi.TitleProperty)
	require.True(t, ok)
	assert.Equal(t, "lunch 250", title.Title[0].Text.Content, "raw input used when note is empty")
	assert.Equal(t, "t1", transactionID(notionapi.Page{Properties: props}))
	assert.Equal(t, 250.0, props[PropAmount].(notionapi.NumberProperty).Number)
	assert.Equal(t, "Food", props[PropCategory].(notionapi.SelectProperty).Select.Name)
	assert.Equal(t, "BKASH", props[PropAccount].(notionapi.SelectProperty).Select.Name)
	date := props[PropDate].(notionapi.DateProperty).Date.Start
	assert.True(t, time.Time(*date).Equal(tx.Date))
}
