package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidOrderID  = errors.New("ledger: invalid orderId")
	ErrModelNotStocked = errors.New("ledger: model has no stock")
	ErrInvalidQuantity = errors.New("ledger: invalid reservation quantity")
)

// Reservation is the quantity of one model held for one order. A Quantity of
// zero or less releases the order's reservation.
type Reservation struct {
	LedgerID string
	ModelID  string
	OrderID  string
	Quantity int
}

func (r Reservation) Normalize() (Reservation, error) {
	out := Reservation{
		LedgerID: strings.TrimSpace(r.LedgerID),
		ModelID:  strings.TrimSpace(r.ModelID),
		OrderID:  strings.TrimSpace(r.OrderID),
		Quantity: r.Quantity,
	}
	if out.LedgerID == "" {
		return Reservation{}, ErrInvalidLedgerID
	}
	if out.ModelID == "" {
		return Reservation{}, ErrInvalidModelID
	}
	if out.OrderID == "" {
		return Reservation{}, ErrInvalidOrderID
	}
	if out.Quantity < 0 {
		out.Quantity = 0
	}
	return out, nil
}

// IsRelease reports whether applying r removes the order's reservation.
func (r Reservation) IsRelease() bool {
	return r.Quantity <= 0
}

// ApplyReservation sets or clears one order's reservation on a model. Products
// are never touched. Holding stock on a model the ledger does not carry fails
// with ErrModelNotStocked; releasing it is a no-op.
func (l *InventoryLedger) ApplyReservation(r Reservation) error {
	r, err := r.Normalize()
	if err != nil {
		return err
	}

	ms, ok := l.Stock[r.ModelID]
	if !ok || ms.IsEmpty() {
		if r.IsRelease() {
			return nil
		}
		return ErrModelNotStocked
	}

	reserved := make(map[string]int, len(ms.ReservedByOrder)+1)
	for orderID, qty := range ms.ReservedByOrder {
		reserved[orderID] = qty
	}
	if r.IsRelease() {
		delete(reserved, r.OrderID)
	} else {
		reserved[r.OrderID] = r.Quantity
	}
	ms.ReservedByOrder = reserved
	l.Stock[r.ModelID] = ms

	return nil
}
