package services

import (
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"zapgastos/internal/alert"
	"zapgastos/internal/models"
	"zapgastos/internal/pagination"
	"zapgastos/internal/period"
	"zapgastos/internal/testutil"
)

func TestPeriodService_GetOrCreatePeriod(t *testing.T) {
	t.Run("creates once per key", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Monthly)

		first, created, err := e.periods.CreatePeriod(budget, march10)
		testutil.AssertNoError(t, err)
		if !created {
			t.Error("expected first call to create the period")
		}

		second, created, err := e.periods.CreatePeriod(budget, march10.Add(5*24*time.Hour))
		testutil.AssertNoError(t, err)
		if created {
			t.Error("expected second call to return the existing period")
		}
		if first.ID != second.ID {
			t.Errorf("expected same period, got %s and %s", first.ID, second.ID)
		}
		if n := countPeriods(t, db, budget.ID); n != 1 {
			t.Errorf("expected 1 period, got %d", n)
		}
	})

	t.Run("snapshots window and limit", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Biweekly)

		p, _, err := e.periods.CreatePeriod(budget, time.Date(2024, time.February, 20, 9, 0, 0, 0, time.UTC))
		testutil.AssertNoError(t, err)

		if p.Key().String() != "2024-02/H2" {
			t.Errorf("expected key 2024-02/H2, got %s", p.Key())
		}
		if !p.StartDate.Equal(time.Date(2024, time.February, 16, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected start %v", p.StartDate)
		}
		if !p.EndDate.Equal(time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)) {
			t.Errorf("unexpected end %v", p.EndDate)
		}
		testutil.AssertMoney(t, "limit", p.LimitAmount, "100")
		testutil.AssertMoney(t, "spent", p.Spent, "0")
		if p.Status != models.PeriodStatusActive {
			t.Errorf("expected active, got %s", p.Status)
		}
	})

	t.Run("concurrent creation yields one row", func(t *testing.T) {
		db := testutil.SetupSerialTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Weekly)

		const workers = 4
		ids := make([]string, workers)
		createdCount := 0
		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p, created, err := e.periods.CreatePeriod(budget, march10)
				if err != nil {
					t.Errorf("worker %d: %v", i, err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				ids[i] = p.ID
				if created {
					createdCount++
				}
			}(i)
		}
		wg.Wait()

		if createdCount != 1 {
			t.Errorf("expected exactly one creator, got %d", createdCount)
		}
		for i := 1; i < workers; i++ {
			if ids[i] != ids[0] {
				t.Errorf("worker %d saw period %s, want %s", i, ids[i], ids[0])
			}
		}
		if n := countPeriods(t, db, budget.ID); n != 1 {
			t.Errorf("expected 1 period, got %d", n)
		}
	})

	t.Run("insert conflict returns the winner", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Weekly)
		w, err := e.calc.Compute(period.Weekly, march10)
		testutil.AssertNoError(t, err)

		// Another writer commits the same key after the lookup missed and
		// before this insert runs.
		var winner *models.BudgetPeriod
		armed := true
		err = db.Callback().Create().Before("gorm:create").Register("test:competing_period", func(d *gorm.DB) {
			if !armed || d.Statement.Schema == nil || d.Statement.Schema.Table != "budget_periods" {
				return
			}
			armed = false
			winner = &models.BudgetPeriod{
				BudgetID:    budget.ID,
				Year:        w.Key.Year,
				Month:       w.Key.Month,
				Week:        w.Key.Week,
				LimitAmount: budget.LimitAmount,
				StartDate:   w.Start,
				EndDate:     w.End,
				Status:      models.PeriodStatusActive,
			}
			if err := d.Session(&gorm.Session{NewDB: true}).Create(winner).Error; err != nil {
				t.Errorf("competing insert: %v", err)
			}
		})
		testutil.AssertNoError(t, err)

		p, created, err := e.periods.CreatePeriod(budget, march10)
		testutil.AssertNoError(t, err)
		if winner == nil {
			t.Fatal("competing insert did not run")
		}
		if created {
			t.Error("expected created=false when another writer won")
		}
		if p.ID != winner.ID {
			t.Errorf("expected winner %s, got %s", winner.ID, p.ID)
		}
		if n := countPeriods(t, db, budget.ID); n != 1 {
			t.Errorf("expected 1 period, got %d", n)
		}
	})

	t.Run("rejects inactive budget", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Monthly)
		budget.IsActive = false

		_, _, err := e.periods.CreatePeriod(budget, march10)
		testutil.AssertAppError(t, err, "BUDGET_INACTIVE")
	})
}

func TestPeriodService_ApplyExpense(t *testing.T) {
	t.Run("accumulates and flips to exceeded", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Monthly)

		applyExpense(t, db, e, budget, "30.00", march10)
		applyExpense(t, db, e, budget, "45.50", march10.Add(24*time.Hour))
		p, _ := applyExpense(t, db, e, budget, "10.00", march10.Add(48*time.Hour))

		testutil.AssertMoney(t, "spent", p.Spent, "85.50")
		if p.Status != models.PeriodStatusActive {
			t.Errorf("expected active at 85.50, got %s", p.Status)
		}

		p, _ = applyExpense(t, db, e, budget, "20.00", march10.Add(72*time.Hour))
		testutil.AssertMoney(t, "spent", p.Spent, "105.50")
		if p.Status != models.PeriodStatusExceeded {
			t.Errorf("expected exceeded at 105.50, got %s", p.Status)
		}

		stored := testutil.ReloadPeriod(t, db, p.ID)
		if stored.Status != models.PeriodStatusExceeded {
			t.Errorf("expected stored status exceeded, got %s", stored.Status)
		}
	})

	t.Run("spending exactly the limit stays active", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Monthly)

		p, d := applyExpense(t, db, e, budget, "100.00", march10)
		if p.Status != models.PeriodStatusActive {
			t.Errorf("expected active, got %s", p.Status)
		}
		if d == nil || d.Kind != alert.KindOvershoot {
			t.Errorf("expected overshoot alert at 100%%, got %+v", d)
		}
	})

	t.Run("alerts once per period", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Monthly)

		if _, d := applyExpense(t, db, e, budget, "30.00", march10); d != nil {
			t.Errorf("expected no alert at 30%%, got %+v", d)
		}
		if _, d := applyExpense(t, db, e, budget, "45.50", march10); d != nil {
			t.Errorf("expected no alert at 75.5%%, got %+v", d)
		}

		p, d := applyExpense(t, db, e, budget, "10.00", march10)
		if d == nil {
			t.Fatal("expected warning at 85.5%")
		}
		if d.Kind != alert.KindWarning {
			t.Errorf("expected warning, got %s", d.Kind)
		}
		testutil.AssertMoney(t, "percent", d.Percent, "85.5")

		testutil.AssertNoError(t, e.periods.MarkAlertSent(p.ID))

		if _, d := applyExpense(t, db, e, budget, "20.00", march10); d != nil {
			t.Errorf("expected no alert after delivery, got %+v", d)
		}
	})

	t.Run("same transaction applied twice counts once", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Monthly)
		ledger := testutil.CreateTestTransaction(t, db, userID, &cat.ID, models.TransactionTypeExpense, "90.00", march10)

		for i := 0; i < 2; i++ {
			err := db.Transaction(func(tx *gorm.DB) error {
				p, d, err := e.periods.ApplyExpense(tx, budget, ledger.ID, ledger.Amount, ledger.Date)
				if err != nil {
					return err
				}
				testutil.AssertMoney(t, "spent", p.Spent, "90")
				if i == 1 && d != nil {
					t.Errorf("expected no alert on replay, got %+v", d)
				}
				return nil
			})
			testutil.AssertNoError(t, err)
		}
	})

	t.Run("backdated expense lands in its own period", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Monthly)

		current, _, err := e.periods.CreatePeriod(budget, march10)
		testutil.AssertNoError(t, err)

		p, _ := applyExpense(t, db, e, budget, "12.00", time.Date(2024, time.February, 28, 18, 0, 0, 0, time.UTC))
		if p.ID == current.ID {
			t.Fatal("expected a February period, got the current one")
		}
		if p.Month != 2 {
			t.Errorf("expected month 2, got %d", p.Month)
		}
		testutil.AssertMoney(t, "current spent", testutil.ReloadPeriod(t, db, current.ID).Spent, "0")
	})

	t.Run("backdated expense into finalized period does not alert", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Monthly)

		feb := time.Date(2024, time.February, 20, 12, 0, 0, 0, time.UTC)
		closed, _, err := e.periods.CreatePeriod(budget, feb)
		testutil.AssertNoError(t, err)
		_, err = e.recon.Rollover(march10)
		testutil.AssertNoError(t, err)
		if got := testutil.ReloadPeriod(t, db, closed.ID).Status; got != models.PeriodStatusFinalized {
			t.Fatalf("expected February to be finalized, got %s", got)
		}

		p, d := applyExpense(t, db, e, budget, "150.00", feb)
		if p.ID != closed.ID {
			t.Fatalf("expected the February period, got %s", p.Key())
		}
		if d != nil {
			t.Errorf("expected no alert for a finalized period, got %+v", d)
		}
		if p.Status != models.PeriodStatusFinalized {
			t.Errorf("expected status to stay finalized, got %s", p.Status)
		}
		testutil.AssertMoney(t, "february spent", p.Spent, "150")
	})

	t.Run("validation", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		cat := testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense)
		budget := testutil.CreateTestBudget(t, db, userID, cat.ID, period.Monthly)

		tests := []struct {
			name   string
			mutate func(b models.Budget) *models.Budget
			amount string
			code   string
		}{
			{"inactive budget", func(b models.Budget) *models.Budget { b.IsActive = false; return &b }, "10", "BUDGET_INACTIVE"},
			{"zero limit", func(b models.Budget) *models.Budget { b.LimitAmount = testutil.Money(t, "0"); return &b }, "10", "INVALID_BUDGET_LIMIT"},
			{"unknown periodicity", func(b models.Budget) *models.Budget { b.Periodicity = "daily"; return &b }, "10", "INVALID_PERIODICITY"},
			{"zero amount", func(b models.Budget) *models.Budget { return &b }, "0", "INVALID_EXPENSE_AMOUNT"},
			{"negative amount", func(b models.Budget) *models.Budget { return &b }, "-5", "INVALID_EXPENSE_AMOUNT"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := db.Transaction(func(tx *gorm.DB) error {
					_, _, err := e.periods.ApplyExpense(tx, tt.mutate(*budget), testutil.NewUserID(), testutil.Money(t, tt.amount), march10)
					return err
				})
				testutil.AssertAppError(t, err, tt.code)
			})
		}
		if n := countPeriods(t, db, budget.ID); n != 0 {
			t.Errorf("expected no period after rejected expenses, got %d", n)
		}
	})
}

func TestPeriodService_Alerts(t *testing.T) {
	t.Run("lists unsent periods at threshold", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		hot := testutil.CreateTestBudget(t, db, userID, testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense).ID, period.Monthly)
		cold := testutil.CreateTestBudget(t, db, userID, testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense).ID, period.Monthly)
		other := testutil.NewUserID()
		foreign := testutil.CreateTestBudget(t, db, other, testutil.CreateTestCategory(t, db, other, models.CategoryTypeExpense).ID, period.Monthly)

		hotPeriod, _ := applyExpense(t, db, e, hot, "95.00", march10)
		applyExpense(t, db, e, cold, "10.00", march10)
		applyExpense(t, db, e, foreign, "99.00", march10)

		alerts, err := e.periods.ListAlertablePeriods(userID)
		testutil.AssertNoError(t, err)
		if len(alerts) != 1 {
			t.Fatalf("expected 1 alert, got %d", len(alerts))
		}
		if alerts[0].PeriodID != hotPeriod.ID || alerts[0].BudgetID != hot.ID {
			t.Errorf("unexpected alert %+v", alerts[0])
		}

		testutil.AssertNoError(t, e.periods.MarkAlertSentForUser(userID, hotPeriod.ID))
		alerts, err = e.periods.ListAlertablePeriods(userID)
		testutil.AssertNoError(t, err)
		if len(alerts) != 0 {
			t.Errorf("expected no alerts after marking, got %d", len(alerts))
		}
	})

	t.Run("mark rejects foreign and unknown periods", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		owner := testutil.NewUserID()
		budget := testutil.CreateTestBudget(t, db, owner, testutil.CreateTestCategory(t, db, owner, models.CategoryTypeExpense).ID, period.Monthly)
		p, _, err := e.periods.CreatePeriod(budget, march10)
		testutil.AssertNoError(t, err)

		err = e.periods.MarkAlertSentForUser(testutil.NewUserID(), p.ID)
		testutil.AssertAppError(t, err, "PERIOD_NOT_FOUND")
		if testutil.ReloadPeriod(t, db, p.ID).AlertSent {
			t.Error("foreign user must not mark the period")
		}

		err = e.periods.MarkAlertSent(testutil.NewUserID())
		testutil.AssertAppError(t, err, "PERIOD_NOT_FOUND")
	})

	t.Run("finalized periods are not alertable", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		e := newEngine(db, nil)

		userID := testutil.NewUserID()
		budget := testutil.CreateTestBudget(t, db, userID, testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense).ID, period.Monthly)
		p, _ := applyExpense(t, db, e, budget, "90.00", march10)
		if err := db.Model(p).Update("status", models.PeriodStatusFinalized).Error; err != nil {
			t.Fatal(err)
		}

		alerts, err := e.periods.ListAlertablePeriods(userID)
		testutil.AssertNoError(t, err)
		if len(alerts) != 0 {
			t.Errorf("expected no alerts for finalized period, got %d", len(alerts))
		}
	})
}

func TestPeriodService_ListBudgetPeriods(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	e := newEngine(db, nil)

	userID := testutil.NewUserID()
	budget := testutil.CreateTestBudget(t, db, userID, testutil.CreateTestCategory(t, db, userID, models.CategoryTypeExpense).ID, period.Monthly)
	for _, m := range []time.Month{time.January, time.February, time.March} {
		_, _, err := e.periods.CreatePeriod(budget, time.Date(2024, m, 5, 0, 0, 0, 0, time.UTC))
		testutil.AssertNoError(t, err)
	}

	result, err := e.periods.ListBudgetPeriods(budget.ID, pagination.PageRequest{Page: 1, PageSize: 2})
	testutil.AssertNoError(t, err)
	if result.TotalItems != 3 {
		t.Errorf("expected 3 total, got %d", result.TotalItems)
	}
	if len(result.Data) != 2 {
		t.Fatalf("expected 2 on page, got %d", len(result.Data))
	}
	if result.Data[0].Month != 3 {
		t.Errorf("expected newest first, got month %d", result.Data[0].Month)
	}
}
