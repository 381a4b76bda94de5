package checkout

import "strings"

// BankAccount identifies the account shoppers pay into for bank transfers.
type BankAccount struct {
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	RoutingNumber string `json:"routingNumber"`
	BankName      string `json:"bankName"`
	SWIFT         string `json:"swiftCode"`
}

// DefaultBankAccount is used when no account is configured.
var DefaultBankAccount = BankAccount{
	AccountName:   "BrickMini LLC",
	AccountNumber: "1234567890",
	RoutingNumber: "021000021",
	BankName:      "Example Bank",
	SWIFT:         "EXBKUS33",
}

const transferDueWithin = "3 business days"

// BankTransferInstructions tell the shopper how to settle a bank-transfer order.
type BankTransferInstructions struct {
	BankAccount
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
	DueWithin string  `json:"dueWithin"`
}

func (a BankAccount) withDefaults() BankAccount {
	if strings.TrimSpace(a.AccountName) == "" {
		a.AccountName = DefaultBankAccount.AccountName
	}
	if strings.TrimSpace(a.AccountNumber) == "" {
		a.AccountNumber = DefaultBankAccount.AccountNumber
	}
	if strings.TrimSpace(a.RoutingNumber) == "" {
		a.RoutingNumber = DefaultBankAccount.RoutingNumber
	}
	if strings.TrimSpace(a.BankName) == "" {
		a.BankName = DefaultBankAccount.BankName
	}
	if strings.TrimSpace(a.SWIFT) == "" {
		a.SWIFT = DefaultBankAccount.SWIFT
	}
	return a
}

// Instructions builds the transfer instructions for an order. The order number is the payment reference.
func (a BankAccount) Instructions(orderNumber string, amount float64) *BankTransferInstructions {
	return &BankTransferInstructions{
		BankAccount: a.withDefaults(),
		Reference:   orderNumber,
		Amount:      amount,
		DueWithin:   transferDueWithin,
	}
}
