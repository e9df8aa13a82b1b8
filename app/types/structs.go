package types

import (
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

var ErrEmptyMessage = errors.New("request message is empty")

// The gRPC ops service exchanges google.protobuf.Struct messages carrying the REST field names.

func NewInitiatePaymentRequestFromStruct(msg *structpb.Struct) (*InitiatePaymentRequest, error) {
	var body InitiatePaymentRequest
	if err := decodeStruct(msg, &body); err != nil {
		return nil, err
	}
	body.normalize()
	return &body, nil
}

func NewGetPaymentRequestRequestFromStruct(msg *structpb.Struct) (*GetPaymentRequestRequest, error) {
	var body struct {
		RequestID string `json:"requestId"`
	}
	if err := decodeStruct(msg, &body); err != nil {
		return nil, err
	}
	return &GetPaymentRequestRequest{RequestID: strings.TrimSpace(body.RequestID)}, nil
}

func NewIntegrationHealthRequestFromStruct(msg *structpb.Struct) (*IntegrationHealthRequest, error) {
	var body struct {
		IntegrationID uint64 `json:"integrationId"`
		WindowMinutes int64  `json:"windowMinutes"`
	}
	if err := decodeStruct(msg, &body); err != nil {
		return nil, err
	}
	return &IntegrationHealthRequest{IntegrationID: body.IntegrationID, WindowMinutes: body.WindowMinutes}, nil
}

func NewAlertActionRequestFromStruct(msg *structpb.Struct) (*AlertActionRequest, error) {
	var body struct {
		AlertID        uint64 `json:"alertId"`
		AcknowledgedBy string `json:"acknowledgedBy"`
	}
	if err := decodeStruct(msg, &body); err != nil {
		return nil, err
	}
	return &AlertActionRequest{AlertID: body.AlertID, AcknowledgedBy: strings.TrimSpace(body.AcknowledgedBy)}, nil
}

func decodeStruct(msg *structpb.Struct, target interface{}) error {
	if msg == nil {
		return ErrEmptyMessage
	}
	raw, err := msg.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
