package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"zapgastos/internal/alert"
	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/models"
	"zapgastos/internal/pagination"
	"zapgastos/internal/services"
)

// --- mock transaction service ---

type mockTransactionService struct {
	createTransactionFn   func(userID string, in services.TransactionInput) (*models.Transaction, *alert.Descriptor, error)
	getUserTransactionsFn func(userID string, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	getTransactionByIDFn  func(userID, transactionID string) (*models.Transaction, error)
	deleteTransactionFn   func(userID, transactionID string) error
}

func (m *mockTransactionService) CreateTransaction(userID string, in services.TransactionInput) (*models.Transaction, *alert.Descriptor, error) {
	if m.createTransactionFn != nil {
		return m.createTransactionFn(userID, in)
	}
	return &models.Transaction{Base: models.Base{ID: testTxID}, UserID: userID, Amount: in.Amount, Type: in.Type}, nil, nil
}

func (m *mockTransactionService) GetUserTransactions(userID string, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	if m.getUserTransactionsFn != nil {
		return m.getUserTransactionsFn(userID, page, filter)
	}
	resp := pagination.NewPageResponse([]models.Transaction{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockTransactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	if m.getTransactionByIDFn != nil {
		return m.getTransactionByIDFn(userID, transactionID)
	}
	return &models.Transaction{}, nil
}

func (m *mockTransactionService) DeleteTransaction(userID, transactionID string) error {
	if m.deleteTransactionFn != nil {
		return m.deleteTransactionFn(userID, transactionID)
	}
	return nil
}

var _ services.TransactionServicer = (*mockTransactionService)(nil)

func setupTransactionRouter(handler *TransactionHandler) *gin.Engine {
	handler.now = fixedClock
	r := gin.New()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/transactions", handler.CreateTransaction)
	auth.GET("/transactions", handler.GetUserTransactions)
	auth.GET("/transactions/:id", handler.GetTransactionByID)
	auth.DELETE("/transactions/:id", handler.DeleteTransaction)
	return r
}

func TestTransactionHandler_CreateTransaction(t *testing.T) {
	t.Run("returns 201 with budget alert", func(t *testing.T) {
		var captured services.TransactionInput
		svc := &mockTransactionService{
			createTransactionFn: func(userID string, in services.TransactionInput) (*models.Transaction, *alert.Descriptor, error) {
				captured = in
				return &models.Transaction{Base: models.Base{ID: testTxID}, UserID: userID, Amount: in.Amount},
					&alert.Descriptor{Kind: alert.KindWarning, PeriodID: testPeriodID, Percent: decimal.RequireFromString("85.5")}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupTransactionRouter(NewTransactionHandler(svc, audit))

		rec := doRequest(r, "POST", "/transactions",
			`{"category_id":"`+testCatID+`","type":"despesa","amount":"45.50","channel":"audioMessage","date":"2024-03-10"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if !captured.Amount.Equal(decimal.RequireFromString("45.5")) {
			t.Errorf("unexpected amount %s", captured.Amount)
		}
		if captured.Channel != models.ChannelAudio {
			t.Errorf("unexpected channel %q", captured.Channel)
		}
		if !captured.Date.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected date %v", captured.Date)
		}
		result := parseJSON(t, rec)
		budgetAlert, ok := result["budget_alert"].(map[string]interface{})
		if !ok || budgetAlert["kind"] != "warning" {
			t.Errorf("expected warning alert, got %v", result["budget_alert"])
		}
		if got := audit.actions(); len(got) != 1 || got[0] != "CREATE_TRANSACTION" {
			t.Errorf("unexpected audit entries %v", got)
		}
	})

	t.Run("budget_alert is null without alert", func(t *testing.T) {
		var captured services.TransactionInput
		svc := &mockTransactionService{
			createTransactionFn: func(_ string, in services.TransactionInput) (*models.Transaction, *alert.Descriptor, error) {
				captured = in
				return &models.Transaction{}, nil, nil
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/transactions", `{"type":"receita","amount":1000}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if v, ok := parseJSON(t, rec)["budget_alert"]; !ok || v != nil {
			t.Errorf("expected budget_alert null, got %v", v)
		}
		if !captured.Date.Equal(fixedNow) || captured.CategoryID != nil {
			t.Errorf("expected the request clock as date and no category, got %v %v", captured.Date, captured.CategoryID)
		}
	})

	bad := []struct {
		name string
		body string
	}{
		{"zero amount", `{"type":"despesa","amount":0}`},
		{"negative amount", `{"type":"despesa","amount":"-5"}`},
		{"unknown type", `{"type":"transfer","amount":10}`},
		{"unknown channel", `{"type":"despesa","amount":10,"channel":"fax"}`},
		{"bad category id", `{"type":"despesa","amount":10,"category_id":"7"}`},
		{"bad date", `{"type":"despesa","amount":10,"date":"10/03/2024"}`},
	}
	for _, tt := range bad {
		t.Run("returns 400 on "+tt.name, func(t *testing.T) {
			r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))
			rec := doRequest(r, "POST", "/transactions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
		})
	}

	t.Run("maps category type mismatch", func(t *testing.T) {
		svc := &mockTransactionService{
			createTransactionFn: func(string, services.TransactionInput) (*models.Transaction, *alert.Descriptor, error) {
				return nil, nil, apperrors.ErrCategoryTypeMismatch
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))
		rec := doRequest(r, "POST", "/transactions", `{"type":"receita","amount":10,"category_id":"`+testCatID+`"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "CATEGORY_TYPE_MISMATCH")
	})
}

func TestTransactionHandler_GetUserTransactions(t *testing.T) {
	t.Run("passes filters", func(t *testing.T) {
		var captured services.TransactionFilter
		svc := &mockTransactionService{
			getUserTransactionsFn: func(_ string, _ pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
				captured = filter
				resp := pagination.NewPageResponse([]models.Transaction{}, 1, 20, 0)
				return &resp, nil
			},
		}
		r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/transactions?type=despesa&category_id="+testCatID+"&from_date=2024-03-01&to_date=2024-03-31T23:59:59Z", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if captured.Type == nil || *captured.Type != models.TransactionTypeExpense {
			t.Error("expected type filter")
		}
		if captured.CategoryID == nil || *captured.CategoryID != testCatID {
			t.Error("expected category filter")
		}
		if captured.FromDate == nil || captured.ToDate == nil {
			t.Error("expected date filters")
		}
	})

	for _, q := range []string{"type=transfer", "category_id=12", "from_date=march"} {
		t.Run("returns 400 on "+q, func(t *testing.T) {
			r := setupTransactionRouter(NewTransactionHandler(&mockTransactionService{}, &mockAuditService{}))
			rec := doRequest(r, "GET", "/transactions?"+q, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestTransactionHandler_GetTransactionByID(t *testing.T) {
	svc := &mockTransactionService{
		getTransactionByIDFn: func(_, id string) (*models.Transaction, error) {
			if id != testTxID {
				return nil, apperrors.ErrTransactionNotFound
			}
			return &models.Transaction{Base: models.Base{ID: id}, Description: "Almoço"}, nil
		},
	}
	r := setupTransactionRouter(NewTransactionHandler(svc, &mockAuditService{}))

	rec := doRequest(r, "GET", "/transactions/"+testTxID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	tx := parseJSON(t, rec)["transaction"].(map[string]interface{})
	if tx["description"] != "Almoço" {
		t.Errorf("unexpected description %v", tx["description"])
	}

	rec = doRequest(r, "GET", "/transactions/"+testCatID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	assertErrorCode(t, parseJSON(t, rec), "TRANSACTION_NOT_FOUND")
}

func TestTransactionHandler_DeleteTransaction(t *testing.T) {
	var deleted string
	svc := &mockTransactionService{
		deleteTransactionFn: func(_, id string) error { deleted = id; return nil },
	}
	audit := &mockAuditService{}
	r := setupTransactionRouter(NewTransactionHandler(svc, audit))

	rec := doRequest(r, "DELETE", "/transactions/"+testTxID, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if deleted != testTxID {
		t.Errorf("unexpected id %q", deleted)
	}
	if got := audit.actions(); len(got) != 1 || got[0] != "DELETE_TRANSACTION" {
		t.Errorf("unexpected audit entries %v", got)
	}
}
