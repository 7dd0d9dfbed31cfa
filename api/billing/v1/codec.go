// Package billingv1 описывает gRPC API биллинга магазина: сообщения, JSON-кодек и ServiceDesc.
// Денежные поля передаются десятичными строками ("150.00").
package billingv1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName — content-subtype сообщений API (application/grpc+json).
const CodecName = "json"

// Codec сериализует сообщения API в JSON.
type Codec struct{}

// Name возвращает content-subtype кодека.
func (Codec) Name() string { return CodecName }

// Marshal кодирует сообщение.
func (Codec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("billingv1: marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal декодирует сообщение.
func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("billingv1: unmarshal %T: %w", v, err)
	}
	return nil
}

// CallOption выбирает JSON-кодек для вызова клиента.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}

func init() {
	encoding.RegisterCodec(Codec{})
}
