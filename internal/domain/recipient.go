package domain

// DeliveryKind discriminates payout detail shapes. It is a closed set: every
// delivery method maps to exactly one of bank transfer, mobile money, or
// e-wallet.
type DeliveryKind string

const (
	DeliveryBankTransfer DeliveryKind = "bank_transfer"
	DeliveryMobileMoney  DeliveryKind = "mobile_money"
	DeliveryEWallet      DeliveryKind = "e_wallet"
)

// RecipientDetails is the tagged variant over payout detail shapes. Consumers
// switch on Kind and the concrete types below; there is no free-form map.
type RecipientDetails interface {
	Kind() DeliveryKind
	// Fields flattens the details into the field names delivery method
	// registries validate against.
	Fields() map[string]string
}

// BankDetails holds bank-transfer payout fields.
type BankDetails struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

func (BankDetails) Kind() DeliveryKind { return DeliveryBankTransfer }

func (d BankDetails) Fields() map[string]string {
	return map[string]string{
		"bank_code":      d.BankCode,
		"account_number": d.AccountNumber,
		"account_name":   d.AccountName,
	}
}

// MobileMoneyDetails holds mobile-money payout fields.
type MobileMoneyDetails struct {
	Provider    string `json:"provider"`
	PhoneNumber string `json:"phone_number"`
	AccountName string `json:"account_name"`
}

func (MobileMoneyDetails) Kind() DeliveryKind { return DeliveryMobileMoney }

func (d MobileMoneyDetails) Fields() map[string]string {
	return map[string]string{
		"provider":     d.Provider,
		"phone_number": d.PhoneNumber,
		"account_name": d.AccountName,
	}
}

// EWalletDetails holds e-wallet payout fields.
type EWalletDetails struct {
	Provider string `json:"provider"`
	WalletID string `json:"wallet_id"`
}

func (EWalletDetails) Kind() DeliveryKind { return DeliveryEWallet }

func (d EWalletDetails) Fields() map[string]string {
	return map[string]string{
		"provider":  d.Provider,
		"wallet_id": d.WalletID,
	}
}
