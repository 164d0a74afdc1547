package upayments

// Order describes the purchase inside a charge request. Amount is in KWD
// with three decimal places (UPayments expects the decimal value, not fils).
type Order struct {
	ID          string  `json:"id"`
	Reference   string  `json:"reference"`
	Description string  `json:"description"`
	Currency    string  `json:"currency"`
	Amount      float64 `json:"amount"`
}

// Customer carries the payer details UPayments shows on the KNET page.
type Customer struct {
	UniqueID string `json:"uniqueId"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Mobile   string `json:"mobile,omitempty"`
}

// CreateSessionRequest is the body of POST /charge.
type CreateSessionRequest struct {
	Order           Order    `json:"order"`
	Customer        Customer `json:"customer"`
	PaymentGateway  Gateway  `json:"paymentGateway"`
	ReturnURL       string   `json:"returnUrl"`
	CancelURL       string   `json:"cancelUrl"`
	NotificationURL string   `json:"notificationUrl"`
}

// Gateway selects the payment instrument: knet, cc or any wallet UPayments
// supports. "src" per their API naming.
type Gateway struct {
	Src string `json:"src"`
}

// CreateSessionResponse is the body UPayments returns from POST /charge.
// Link is the hosted payment page the customer is redirected to.
type CreateSessionResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link    string `json:"link"`
		TrackID string `json:"trackId"`
	} `json:"data"`
}

// StatusResponse is the body of GET /get-payment-status/{trackId}.
type StatusResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Transaction struct {
			TrackID string `json:"trackId"`
			Status  string `json:"status"`
		} `json:"transaction"`
	} `json:"data"`
}
