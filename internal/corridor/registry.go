package corridor

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"remit/internal/domain"
	"remit/pkg/errors"
)

// FieldRule is one required recipient field with its validation rule. Rule is
// a go-playground/validator tag expression evaluated against the raw value.
type FieldRule struct {
	Name        string `json:"name"`
	Rule        string `json:"rule"`
	Description string `json:"description"`
}

// DeliveryMethod is a static payout method catalog entry.
type DeliveryMethod struct {
	ID               string              `json:"id"`
	Kind             domain.DeliveryKind `json:"kind"`
	Country          string              `json:"country"`
	Currency         domain.Currency     `json:"currency"`
	MinAmount        decimal.Decimal     `json:"min_amount"`
	MaxAmount        decimal.Decimal     `json:"max_amount"`
	FixedFee         decimal.Decimal     `json:"fixed_fee"`
	PercentFee       decimal.Decimal     `json:"percent_fee"`
	Fields           []FieldRule         `json:"fields"`
	EstimatedMinutes int                 `json:"estimated_minutes"`
}

// Registry is the static delivery-method catalog, loaded at startup.
type Registry struct {
	methods  map[string]*DeliveryMethod
	validate *validator.Validate
}

// NewRegistry builds the demo delivery method catalog.
func NewRegistry() *Registry {
	methods := []*DeliveryMethod{
		{
			ID:         "ph_gcash",
			Kind:       domain.DeliveryMobileMoney,
			Country:    "PH",
			Currency:   domain.PHP,
			MinAmount:  decimal.NewFromInt(100),
			MaxAmount:  decimal.NewFromInt(500000),
			FixedFee:   decimal.NewFromInt(15),
			PercentFee: decimal.NewFromFloat(0.005),
			Fields: []FieldRule{
				{Name: "phone_number", Rule: "required,numeric,len=11,startswith=09", Description: "GCash mobile number"},
				{Name: "account_name", Rule: "required,min=2,max=100", Description: "Registered account holder name"},
			},
			EstimatedMinutes: 10,
		},
		{
			ID:         "ph_bank",
			Kind:       domain.DeliveryBankTransfer,
			Country:    "PH",
			Currency:   domain.PHP,
			MinAmount:  decimal.NewFromInt(500),
			MaxAmount:  decimal.NewFromInt(1000000),
			FixedFee:   decimal.NewFromInt(25),
			PercentFee: decimal.NewFromFloat(0.0025),
			Fields: []FieldRule{
				{Name: "bank_code", Rule: "required,alphanum,min=3,max=11", Description: "InstaPay/PESONet bank code"},
				{Name: "account_number", Rule: "required,numeric,min=10,max=16", Description: "Account number"},
				{Name: "account_name", Rule: "required,min=2,max=100", Description: "Account holder name"},
			},
			EstimatedMinutes: 120,
		},
		{
			ID:         "mx_spei",
			Kind:       domain.DeliveryBankTransfer,
			Country:    "MX",
			Currency:   domain.MXN,
			MinAmount:  decimal.NewFromInt(50),
			MaxAmount:  decimal.NewFromInt(200000),
			FixedFee:   decimal.NewFromInt(10),
			PercentFee: decimal.NewFromFloat(0.003),
			Fields: []FieldRule{
				{Name: "account_number", Rule: "required,numeric,len=18", Description: "CLABE"},
				{Name: "account_name", Rule: "required,min=2,max=100", Description: "Account holder name"},
			},
			EstimatedMinutes: 30,
		},
		{
			ID:         "ng_bank",
			Kind:       domain.DeliveryBankTransfer,
			Country:    "NG",
			Currency:   domain.NGN,
			MinAmount:  decimal.NewFromInt(1000),
			MaxAmount:  decimal.NewFromInt(5000000),
			FixedFee:   decimal.NewFromInt(100),
			PercentFee: decimal.NewFromFloat(0.004),
			Fields: []FieldRule{
				{Name: "bank_code", Rule: "required,numeric,len=3", Description: "NIBSS bank code"},
				{Name: "account_number", Rule: "required,numeric,len=10", Description: "NUBAN account number"},
				{Name: "account_name", Rule: "required,min=2,max=100", Description: "Account holder name"},
			},
			EstimatedMinutes: 45,
		},
		{
			ID:         "in_upi",
			Kind:       domain.DeliveryEWallet,
			Country:    "IN",
			Currency:   domain.INR,
			MinAmount:  decimal.NewFromInt(100),
			MaxAmount:  decimal.NewFromInt(100000),
			FixedFee:   decimal.NewFromInt(5),
			PercentFee: decimal.NewFromFloat(0.002),
			Fields: []FieldRule{
				{Name: "provider", Rule: "required,oneof=phonepe gpay paytm", Description: "UPI app"},
				{Name: "wallet_id", Rule: "required,contains=@,min=5,max=64", Description: "UPI virtual payment address"},
			},
			EstimatedMinutes: 20,
		},
	}

	byID := make(map[string]*DeliveryMethod, len(methods))
	for _, m := range methods {
		byID[m.ID] = m
	}
	return &Registry{methods: byID, validate: validator.New()}
}

// Method returns the delivery method by id.
func (r *Registry) Method(id string) (*DeliveryMethod, error) {
	m, ok := r.methods[id]
	if !ok {
		return nil, errors.ErrInvalidDeliveryMethod
	}
	return m, nil
}

// MethodsFor lists methods available for a (country, currency) pair.
func (r *Registry) MethodsFor(country string, currency domain.Currency) []*DeliveryMethod {
	var out []*DeliveryMethod
	for _, m := range r.methods {
		if m.Country == country && m.Currency == currency {
			out = append(out, m)
		}
	}
	return out
}

// DefaultMethodFor picks a method for the pair when the caller names none.
func (r *Registry) DefaultMethodFor(country string, currency domain.Currency) (*DeliveryMethod, error) {
	methods := r.MethodsFor(country, currency)
	if len(methods) == 0 {
		return nil, errors.ErrInvalidDeliveryMethod
	}
	// Prefer the fastest method as the default.
	best := methods[0]
	for _, m := range methods[1:] {
		if m.EstimatedMinutes < best.EstimatedMinutes {
			best = m
		}
	}
	return best, nil
}

// CheckAmount verifies amount against the method's bounds.
func (r *Registry) CheckAmount(method *DeliveryMethod, amount decimal.Decimal) error {
	if amount.LessThan(method.MinAmount) {
		return errors.ErrAmountBelowMinimum
	}
	if amount.GreaterThan(method.MaxAmount) {
		return errors.ErrAmountAboveMaximum
	}
	return nil
}

// ValidateDetails checks recipient details against the method's field rules.
// The details' discriminator must match the method kind, and every declared
// field must satisfy its rule.
func (r *Registry) ValidateDetails(method *DeliveryMethod, details domain.RecipientDetails) error {
	if details == nil {
		return errors.ErrInvalidRecipientFields
	}
	if details.Kind() != method.Kind {
		return errors.Wrap(errors.ErrInvalidDeliveryMethod,
			fmt.Sprintf("details are %s but method %s expects %s", details.Kind(), method.ID, method.Kind))
	}

	fields := details.Fields()
	for _, rule := range method.Fields {
		value := fields[rule.Name]
		if err := r.validate.Var(value, rule.Rule); err != nil {
			return errors.Wrap(errors.ErrInvalidRecipientFields,
				fmt.Sprintf("field %q failed rule %q", rule.Name, rule.Rule))
		}
	}
	return nil
}
