package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-payment-gateway/app/entity"
)

var ErrMissingSTKCallback = errors.New("payload has no Body.stkCallback")

// UnknownResultCode is recorded when a push callback carries no usable ResultCode.
const UnknownResultCode = -1

type stkCallbackEnvelope struct {
	Body struct {
		STKCallback *struct {
			MerchantRequestID string      `json:"MerchantRequestID"`
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallbackNormalizer handles push-confirmation callbacks whose fields arrive as a Name/Value list.
type STKCallbackNormalizer struct {
	defaultCurrency string
}

func NewSTKCallbackNormalizer(defaultCurrency string) *STKCallbackNormalizer {
	return &STKCallbackNormalizer{defaultCurrency: defaultCurrency}
}

func (n *STKCallbackNormalizer) Family() entity.ProviderFamily {
	return entity.FamilyMpesaSTK
}

func (n *STKCallbackNormalizer) Normalize(payload []byte) (*entity.NormalizedPayload, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var envelope stkCallbackEnvelope
	if err := decoder.Decode(&envelope); err != nil {
		return nil, err
	}
	callback := envelope.Body.STKCallback
	if callback == nil {
		return nil, ErrMissingSTKCallback
	}

	items := make(map[string]interface{}, len(callback.CallbackMetadata.Item))
	for _, item := range callback.CallbackMetadata.Item {
		items[item.Name] = item.Value
	}

	var problems []string
	eventType := entity.EventTypePayment
	resultCode, err := callback.ResultCode.Int64()
	switch {
	case err != nil:
		resultCode = UnknownResultCode
		eventType = entity.EventTypeValidationFailure
		problems = append(problems, "ResultCode is missing or not an integer")
	case resultCode != 0:
		eventType = entity.EventTypeValidationFailure
	}

	result := &entity.NormalizedPayload{
		Amount:            parseDecimalish(items["Amount"]),
		Currency:          n.defaultCurrency,
		SenderPhone:       parseStringish(items["PhoneNumber"]),
		ExternalReference: firstString(items, "AccountReference", "BillRefNumber"),
		ProviderReference: parseStringish(items["MpesaReceiptNumber"]),
		TransactionDate:   normalizeTransactionDate(parseStringish(items["TransactionDate"])),
		EventType:         eventType,
		CorrelationID:     strings.TrimSpace(callback.CheckoutRequestID),
		ResultCode:        int(resultCode),
		ResultDescription: strings.TrimSpace(callback.ResultDesc),
		Problems:          problems,
	}
	return result, nil
}
