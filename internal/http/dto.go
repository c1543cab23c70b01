package http

import (
	"time"

	"elsa/internal/core"
)

// JSON shapes of the records. Amounts travel as decimal strings so no
// precision is lost on the way to the browser.

type transactionDTO struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Amount      string    `json:"amount"`
	Date        string    `json:"date"`
	Note        *string   `json:"note"`
	CreatedAt   time.Time `json:"created_at"`
}

type debtDTO struct {
	ID          string    `json:"id"`
	PersonName  string    `json:"person_name"`
	Type        string    `json:"type"`
	Amount      string    `json:"amount"`
	Description *string   `json:"description"`
	DueDate     *string   `json:"due_date"`
	IsPaid      bool      `json:"is_paid"`
	CreatedAt   time.Time `json:"created_at"`
}

type goalDTO struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	TargetAmount  string    `json:"target_amount"`
	CurrentAmount string    `json:"current_amount"`
	Progress      string    `json:"progress"`
	Deadline      *string   `json:"deadline"`
	Description   *string   `json:"description"`
	IsCompleted   bool      `json:"is_completed"`
	CreatedAt     time.Time `json:"created_at"`
}

func optionalDate(d *core.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func toTransactionDTO(t core.Transaction) transactionDTO {
	return transactionDTO{
		ID:          t.ID,
		Type:        string(t.Type),
		Category:    t.Category,
		Description: t.Description,
		Amount:      t.Amount.String(),
		Date:        t.Date.String(),
		Note:        t.Note,
		CreatedAt:   t.CreatedAt,
	}
}

func toDebtDTO(d core.Debt) debtDTO {
	return debtDTO{
		ID:          d.ID,
		PersonName:  d.PersonName,
		Type:        string(d.Type),
		Amount:      d.Amount.String(),
		Description: d.Description,
		DueDate:     optionalDate(d.DueDate),
		IsPaid:      d.IsPaid,
		CreatedAt:   d.CreatedAt,
	}
}

func toGoalDTO(g core.SavingsGoal) goalDTO {
	return goalDTO{
		ID:            g.ID,
		Title:         g.Title,
		TargetAmount:  g.TargetAmount.String(),
		CurrentAmount: g.CurrentAmount.String(),
		Progress:      g.Progress(),
		Deadline:      optionalDate(g.Deadline),
		Description:   g.Description,
		IsCompleted:   g.IsCompleted,
		CreatedAt:     g.CreatedAt,
	}
}
