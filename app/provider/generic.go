package provider

import (
	"strings"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

var (
	amountAliases            = []string{"amount", "Amount", "TransAmount", "transaction_amount", "paid_amount"}
	currencyAliases          = []string{"currency", "Currency", "currency_code"}
	senderPhoneAliases       = []string{"MSISDN", "phone", "phone_number", "sender_phone", "msisdn"}
	senderNameAliases        = []string{"sender_name", "customer_name", "payer_name", "name"}
	senderAccountAliases     = []string{"sender_account", "account_number", "debit_account", "source_account"}
	externalReferenceAliases = []string{"BillRefNumber", "account_reference", "AccountReference", "reference", "bill_reference", "invoice_number"}
	providerReferenceAliases = []string{"TransID", "transaction_id", "TransactionID", "bank_reference", "receipt_number", "provider_reference"}
	transactionDateAliases   = []string{"TransTime", "transaction_date", "payment_date", "timestamp"}
	correlationAliases       = []string{"correlation_id", "CheckoutRequestID"}
	eventTypeAliases         = []string{"event_type", "type"}
	resultCodeAliases        = []string{"result_code", "ResultCode"}
	resultDescAliases        = []string{"result_description", "ResultDesc"}
)

// GenericNormalizer handles flat payloads by probing ordered alias lists; the first present alias wins.
type GenericNormalizer struct {
	family          entity.ProviderFamily
	defaultCurrency string
}

func NewGenericNormalizer(family entity.ProviderFamily, defaultCurrency string) *GenericNormalizer {
	return &GenericNormalizer{family: family, defaultCurrency: defaultCurrency}
}

func (n *GenericNormalizer) Family() entity.ProviderFamily {
	return n.family
}

func (n *GenericNormalizer) Normalize(payload []byte) (*entity.NormalizedPayload, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, err
	}

	result := &entity.NormalizedPayload{
		Currency:          strings.ToUpper(firstString(obj, currencyAliases...)),
		SenderPhone:       firstString(obj, senderPhoneAliases...),
		SenderName:        senderName(obj),
		SenderAccount:     firstString(obj, senderAccountAliases...),
		ExternalReference: firstString(obj, externalReferenceAliases...),
		ProviderReference: firstString(obj, providerReferenceAliases...),
		TransactionDate:   normalizeTransactionDate(firstString(obj, transactionDateAliases...)),
		EventType:         genericEventType(firstString(obj, eventTypeAliases...)),
		CorrelationID:     firstString(obj, correlationAliases...),
		ResultDescription: firstString(obj, resultDescAliases...),
	}
	if result.Currency == "" {
		result.Currency = n.defaultCurrency
	}
	if v, ok := firstPresent(obj, amountAliases...); ok {
		result.Amount = parseDecimalish(v)
	}
	if v, ok := firstPresent(obj, resultCodeAliases...); ok {
		result.ResultCode = parseIntish(v)
	}

	return result, nil
}

func senderName(obj map[string]interface{}) string {
	if first := firstString(obj, "FirstName"); first != "" {
		parts := []string{first}
		for _, key := range []string{"MiddleName", "LastName"} {
			if part := firstString(obj, key); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, " ")
	}
	return firstString(obj, senderNameAliases...)
}

func genericEventType(raw string) entity.EventType {
	switch entity.EventType(strings.ToLower(strings.TrimSpace(raw))) {
	case entity.EventTypeReversal:
		return entity.EventTypeReversal
	case entity.EventTypeTimeout:
		return entity.EventTypeTimeout
	default:
		return entity.EventTypePayment
	}
}
