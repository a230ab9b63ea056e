package domain

import "time"

type PaymentVerification string

const (
	PaymentPending   PaymentVerification = "PENDING"
	PaymentDP        PaymentVerification = "DP"
	PaymentFullyPaid PaymentVerification = "FULLY_PAID"
	PaymentRejected  PaymentVerification = "REJECTED"
)

var paymentTransitions = map[PaymentVerification][]PaymentVerification{
	PaymentPending:   {PaymentDP, PaymentFullyPaid, PaymentRejected},
	PaymentDP:        {PaymentFullyPaid},
	PaymentFullyPaid: {},
	PaymentRejected:  {},
}

func (v PaymentVerification) IsValid() bool {
	_, ok := paymentTransitions[v]
	return ok
}

func (v PaymentVerification) CanTransitionTo(target PaymentVerification) bool {
	for _, t := range paymentTransitions[v] {
		if t == target {
			return true
		}
	}
	return false
}

func (v PaymentVerification) IsTerminal() bool {
	return v.IsValid() && len(paymentTransitions[v]) == 0
}

// CountsTowardTotal reports whether the payment's amount is part of the verified cumulative.
func (v PaymentVerification) CountsTowardTotal() bool {
	return v == PaymentDP || v == PaymentFullyPaid
}

type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodEWallet      PaymentMethod = "E_WALLET"
	PaymentMethodCash         PaymentMethod = "CASH"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodEWallet, PaymentMethodCash:
		return true
	}
	return false
}

type Payment struct {
	ID           string              `json:"id"`
	BookingID    string              `json:"booking_id"`
	AmountCents  int64               `json:"amount_cents"`
	Method       PaymentMethod       `json:"method"`
	Verification PaymentVerification `json:"verification"`
	// ProofRefs are opaque handles into proof-of-payment storage; append-only.
	ProofRefs       []string   `json:"proof_refs"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	VerifiedBy      string     `json:"verified_by,omitempty"`
	Version         int64      `json:"version"`
	CreatedOn       time.Time  `json:"created_on"`
	UpdatedOn       time.Time  `json:"updated_on"`
	VerifiedOn      *time.Time `json:"verified_on,omitempty"`
}

func (p *Payment) Clone() *Payment {
	c := *p
	c.ProofRefs = append([]string(nil), p.ProofRefs...)
	if p.VerifiedOn != nil {
		t := *p.VerifiedOn
		c.VerifiedOn = &t
	}
	return &c
}
